package audio

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"
)

// WriteWAV writes float samples to out as a mono PCM16LE WAV stream.
func WriteWAV(out io.Writer, samples []float32, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		n := int16(v * 32767)
		pcm[i*2] = byte(n)
		pcm[i*2+1] = byte(uint16(n) >> 8)
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(audioFormat)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(numChannels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// Dump accumulates session audio and flushes it as a WAV file on Close.
// Used for debugging a live voice session; append is cheap, the file is
// written once.
type Dump struct {
	mu         sync.Mutex
	path       string
	sampleRate int
	samples    []float32
	closed     bool
}

func NewDump(path string, sampleRate int) *Dump {
	return &Dump{path: path, sampleRate: sampleRate}
}

func (d *Dump) Append(samples []float32) {
	if d == nil || len(samples) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.samples = append(d.samples, samples...)
}

func (d *Dump) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if len(d.samples) == 0 {
		return nil
	}
	f, err := os.Create(d.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAV(f, d.samples, d.sampleRate)
}

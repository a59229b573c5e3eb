package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const (
	canonicalBitDepth = 16
	canonicalChannels = 1
	wavFormatPCM      = 1
	wavFormatExt      = 0xFFFE

	minSourceRate = 1000
	maxSourceRate = 384000

	// go-mp3 always yields 16-bit little-endian stereo.
	mp3BytesPerFrame = 4
)

// Audio is a mono 16-bit PCM WAV file at the normalizer's sample rate. The
// file belongs to the Audio value and is deleted by Close.
type Audio struct {
	Path         string
	SampleRate   int
	Channels     int
	BitDepth     int
	Frames       int
	SourceFormat string

	closeOnce sync.Once
	closeErr  error
}

// Close removes the backing file. It is safe to call more than once.
func (a *Audio) Close() error {
	a.closeOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.closeErr = err
		}
	})
	return a.closeErr
}

func (a *Audio) Open() (*os.File, error) {
	return os.Open(a.Path)
}

func (a *Audio) FileName() string {
	return filepath.Base(a.Path)
}

func (a *Audio) Duration() time.Duration {
	return framesDuration(a.Frames, a.SampleRate)
}

func framesDuration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// pcm holds interleaved samples scaled to [-1, 1].
type pcm struct {
	samples  []float64
	channels int
	rate     int
	format   string
}

// NormalizeAudio decodes in, resamples it to the configured rate and writes
// the canonical WAV to a temporary file. The caller owns the returned Audio
// and must Close it; WithAudio does that automatically.
func (n *Normalizer) NormalizeAudio(in Input) (*Audio, error) {
	data, hint, err := readAudioInput(in)
	if err != nil {
		return nil, err
	}

	decoded, err := decodeAudio(data, hint, n.maxDuration)
	if err != nil {
		return nil, decodeError("audio", in, err)
	}
	if decoded.channels <= 0 {
		return nil, decodeError("audio", in, errors.New("no audio channels"))
	}
	if decoded.rate < minSourceRate || decoded.rate > maxSourceRate {
		return nil, decodeError("audio", in, fmt.Errorf("sample rate %d Hz outside %d..%d Hz", decoded.rate, minSourceRate, maxSourceRate))
	}

	mono := downmix(decoded.samples, decoded.channels)
	if len(mono) == 0 {
		return nil, decodeError("audio", in, errors.New("no audio frames"))
	}
	// Bounds the resampled buffer: the output rate is fixed, so duration caps its length.
	if d := framesDuration(len(mono), decoded.rate); d > n.maxDuration {
		return nil, decodeError("audio", in, fmt.Errorf("audio lasts %s, limit is %s", d.Round(time.Second), n.maxDuration))
	}
	mono = resample(mono, decoded.rate, n.sampleRate)

	out, err := n.writeCanonicalWAV(mono)
	if err != nil {
		return nil, decodeError("audio", in, err)
	}
	out.SourceFormat = decoded.format
	return out, nil
}

// WithAudio normalizes in, hands the canonical audio to fn and removes the
// temporary file once fn returns or panics.
func (n *Normalizer) WithAudio(in Input, fn func(*Audio) error) error {
	a, err := n.NormalizeAudio(in)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			n.logger.Warn("failed to remove canonical audio", "path", a.Path, "error", cerr)
		}
	}()
	return fn(a)
}

func readAudioInput(in Input) ([]byte, string, error) {
	switch v := in.(type) {
	case Path:
		data, err := os.ReadFile(string(v))
		if err != nil {
			return nil, "", decodeError("audio", in, err)
		}
		return data, filepath.Ext(string(v)), nil
	case Bytes:
		return []byte(v), "", nil
	case Stream:
		if v.Reader == nil {
			return nil, "", decodeError("audio", in, errors.New("nil reader"))
		}
		data, err := io.ReadAll(v.Reader)
		if err != nil {
			return nil, "", decodeError("audio", in, err)
		}
		return data, filepath.Ext(v.Name), nil
	default:
		return nil, "", unsupported("audio", in)
	}
}

func detectAudioFormat(data []byte, hint string) (string, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("audio/wav"):
		return "wav", nil
	case mt.Is("audio/mpeg"):
		return "mp3", nil
	}
	switch strings.ToLower(hint) {
	case ".wav", ".wave":
		return "wav", nil
	case ".mp3":
		return "mp3", nil
	}
	return "", fmt.Errorf("unrecognized audio container %q", mt.String())
}

func decodeAudio(data []byte, hint string, maxDuration time.Duration) (pcm, error) {
	if len(data) == 0 {
		return pcm{}, errors.New("empty audio payload")
	}
	format, err := detectAudioFormat(data, hint)
	if err != nil {
		return pcm{}, err
	}
	switch format {
	case "wav":
		return decodeWAV(data)
	default:
		return decodeMP3(data, maxDuration)
	}
}

func decodeWAV(data []byte) (pcm, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, fmt.Errorf("decode wav: %w", err)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExt {
		return pcm{}, fmt.Errorf("decode wav: unsupported encoding %d", dec.WavAudioFormat)
	}
	if buf == nil || buf.Format == nil || dec.SampleRate == 0 {
		return pcm{}, errors.New("decode wav: missing format chunk")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return pcm{}, fmt.Errorf("decode wav: unsupported bit depth %d", bitDepth)
	}

	samples := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		for i, v := range buf.Data {
			samples[i] = float64(v-128) / 128
		}
	} else {
		scale := float64(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			samples[i] = float64(v) / scale
		}
	}

	return pcm{
		samples:  samples,
		channels: int(dec.NumChans),
		rate:     int(dec.SampleRate),
		format:   "wav",
	}, nil
}

// decodeMP3 stops reading once the decoded stream passes maxDuration, since a
// low-bitrate file expands by orders of magnitude.
func decodeMP3(data []byte, maxDuration time.Duration) (pcm, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return pcm{}, fmt.Errorf("decode mp3: %w", err)
	}
	limit := int64(maxDuration.Seconds()*float64(dec.SampleRate())) * mp3BytesPerFrame
	if dec.Length() > limit {
		return pcm{}, fmt.Errorf("decode mp3: audio lasts %s, limit is %s",
			framesDuration(int(dec.Length()/mp3BytesPerFrame), dec.SampleRate()).Round(time.Second), maxDuration)
	}
	raw, err := io.ReadAll(io.LimitReader(dec, limit+1))
	if err != nil {
		return pcm{}, fmt.Errorf("decode mp3: %w", err)
	}
	if int64(len(raw)) > limit {
		return pcm{}, fmt.Errorf("decode mp3: audio exceeds %s", maxDuration)
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float64(v) / 32768
	}
	return pcm{
		samples:  samples,
		channels: 2,
		rate:     dec.SampleRate(),
		format:   "mp3",
	}, nil
}

func (n *Normalizer) writeCanonicalWAV(samples []float64) (out *Audio, err error) {
	f, err := os.CreateTemp(n.tempDirectory(), "mediaflow-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	enc := wav.NewEncoder(f, n.sampleRate, canonicalBitDepth, canonicalChannels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: canonicalChannels, SampleRate: n.sampleRate},
		Data:           quantize16(samples),
		SourceBitDepth: canonicalBitDepth,
	}
	if err = enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err = enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &Audio{
		Path:       f.Name(),
		SampleRate: n.sampleRate,
		Channels:   canonicalChannels,
		BitDepth:   canonicalBitDepth,
		Frames:     len(samples),
	}, nil
}

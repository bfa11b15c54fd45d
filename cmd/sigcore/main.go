package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/dbehnke/sigcore/internal/audiofile"
	"github.com/dbehnke/sigcore/internal/codebook"
	"github.com/dbehnke/sigcore/internal/config"
	"github.com/dbehnke/sigcore/internal/kbstore"
	"github.com/dbehnke/sigcore/internal/sigpu"
	"github.com/dbehnke/sigcore/internal/tables"
	"github.com/dbehnke/sigcore/internal/transport"
)

const VERSION = "1.0.0"

// Synthesizer drives one signal PU over a file-based item stream: items
// are queued into the PU's input buffer as space allows, the PU is stepped
// until idle, and emitted items land in an item file or an audio file.
type Synthesizer struct {
	config    *config.Config
	pu        *sigpu.PU
	sessionID string

	itemsIn   uint64
	itemsOut  uint64
	lastStats time.Time
}

// NewSynthesizer builds the PU from the configuration file.
func NewSynthesizer(configFile string) (*Synthesizer, error) {
	cfg := config.NewConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}

	pu, err := sigpu.New(sigpu.Options{
		Codebooks: codebook.Paths{
			Phase:       cfg.GetPhaseCodebookPath(),
			MelCepstrum: cfg.GetMelCepstrumCodebookPath(),
			LogF0:       cfg.GetLogF0CodebookPath(),
		},
		Logger:     log.Default(),
		BufferSize: cfg.GetItemBufferSize(),
		ArenaSize:  int(cfg.GetArenaSize()),
		Pitch:      cfg.GetPitch(),
		Volume:     cfg.GetVolume(),
		Speaker:    cfg.GetSpeaker(),
	})
	if err != nil {
		return nil, err
	}

	return &Synthesizer{
		config:    cfg,
		pu:        pu,
		sessionID: uuid.NewString(),
		lastStats: time.Now(),
	}, nil
}

// Run streams the input item file through the PU and writes the results.
func (s *Synthesizer) Run(inputPath, outputPath string, statsEvery time.Duration) error {
	log.Printf("sigcore v%s starting (session %s)", VERSION, s.sessionID)

	in, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input item stream: %v", err)
	}

	sink, err := newSink(outputPath)
	if err != nil {
		return err
	}
	defer sink.Close()

	pos := 0
	for {
		// Queue as many whole input items as the buffer accepts.
		queued := false
		for pos+transport.HeaderLen <= len(in) {
			plen := int(in[pos+3])
			if pos+transport.HeaderLen+plen > len(in) {
				return fmt.Errorf("truncated item at byte %d", pos)
			}
			it := transport.Item{
				Type:    in[pos],
				Info1:   in[pos+1],
				Info2:   in[pos+2],
				Payload: in[pos+transport.HeaderLen : pos+transport.HeaderLen+plen],
			}
			if err := s.pu.In().WriteItem(it); err != nil {
				break // buffer full, step the PU first
			}
			pos += transport.HeaderLen + plen
			s.itemsIn++
			queued = true
		}

		// Step until the PU has nothing left to do, draining output.
		idle := false
		for !idle {
			switch s.pu.Step(sigpu.ModeNormal) {
			case sigpu.StepIdle:
				idle = true
			case sigpu.StepError:
				return fmt.Errorf("PU entered error state")
			}
			if err := s.drain(sink); err != nil {
				return err
			}
			if statsEvery > 0 && time.Since(s.lastStats) >= statsEvery {
				s.printStats()
			}
		}

		if pos >= len(in) && !queued {
			break
		}
		if !queued && pos < len(in) {
			return fmt.Errorf("PU idle with %d input bytes unconsumed", len(in)-pos)
		}
	}

	s.printStats()
	return nil
}

func (s *Synthesizer) drain(sink itemSink) error {
	for {
		it, ok, err := s.pu.Out().ReadItem()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.itemsOut++
		if err := sink.Write(it); err != nil {
			return err
		}
	}
}

// printStats mirrors the gateway-style periodic stats line, humanized.
func (s *Synthesizer) printStats() {
	framesIn, framesOut, pcmBytes := s.pu.Stats()
	log.Printf("session %s: %s frames in, %s frames out, %s PCM (%s items in, %s items out)",
		s.sessionID,
		humanize.Comma(int64(framesIn)),
		humanize.Comma(int64(framesOut)),
		humanize.Bytes(pcmBytes),
		humanize.Comma(int64(s.itemsIn)),
		humanize.Comma(int64(s.itemsOut)))
	s.lastStats = time.Now()
}

// itemSink is where drained output items go: an audio file (FRAME payloads
// only) or a raw item stream.
type itemSink interface {
	Write(it transport.Item) error
	Close() error
}

type audioSink struct {
	w       *audiofile.Writer
	dropped uint64
}

func (a *audioSink) Write(it transport.Item) error {
	if it.Type != transport.ItemFrame {
		a.dropped++
		return nil
	}
	samples := make([]int16, len(it.Payload)/2)
	for i := range samples {
		samples[i] = int16(uint16(it.Payload[2*i]) | uint16(it.Payload[2*i+1])<<8)
	}
	return a.w.WriteSamples(samples)
}

func (a *audioSink) Close() error {
	if a.dropped > 0 {
		log.Printf("audio output: %d non-FRAME items dropped", a.dropped)
	}
	return a.w.Close()
}

type streamSink struct{ f *os.File }

func (s *streamSink) Write(it transport.Item) error {
	buf := make([]byte, 0, it.Len())
	buf = append(buf, it.Type, it.Info1, it.Info2, uint8(len(it.Payload)))
	buf = append(buf, it.Payload...)
	_, err := s.f.Write(buf)
	return err
}

func (s *streamSink) Close() error { return s.f.Close() }

func newSink(path string) (itemSink, error) {
	if path == "" || path == "-" {
		return &streamSink{f: os.Stdout}, nil
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".au") ||
		strings.HasSuffix(lower, ".pcm") || strings.HasSuffix(lower, ".raw") {
		w, err := audiofile.CreateWriter(path, tables.SampFreq)
		if err != nil {
			return nil, err
		}
		return &audioSink{w: w}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &streamSink{f: f}, nil
}

// dumpKB decodes the configured codebooks into the SQLite inspection
// cache and lists what landed there.
func dumpKB(configFile string, limit int) error {
	cfg := config.NewConfig(configFile)
	if err := cfg.Load(); err != nil {
		return err
	}

	reader, err := codebook.Open(codebook.Paths{
		Phase:       cfg.GetPhaseCodebookPath(),
		MelCepstrum: cfg.GetMelCepstrumCodebookPath(),
		LogF0:       cfg.GetLogF0CodebookPath(),
	})
	if err != nil {
		return err
	}

	cachePath := cfg.GetCachePath()
	if cachePath == "" {
		cachePath = "kb-cache.db"
	}
	store, err := kbstore.Open(cachePath, log.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	nPhase, err := store.DumpPhase(reader, limit)
	if err != nil {
		return err
	}
	nMeans, err := store.DumpMeans(reader, limit)
	if err != nil {
		return err
	}
	log.Printf("dumped %d phase records and %d mean records to %s", nPhase, nMeans, cachePath)

	records, err := store.Records()
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Println(r.String())
	}
	return nil
}

func main() {
	log.SetOutput(os.Stderr)

	configFile := pflag.StringP("config", "c", "sigcore.ini", "configuration file")
	inputPath := pflag.StringP("input", "i", "", "input item stream file")
	outputPath := pflag.StringP("output", "o", "-", "output: item stream file, or .wav/.au/.pcm audio")
	statsEvery := pflag.Duration("stats-interval", 10*time.Second, "periodic stats interval (0 disables)")
	kbDump := pflag.Bool("dump-kb", false, "decode the codebooks into the inspection cache and exit")
	kbLimit := pflag.Int("dump-limit", 0, "max records per codebook to dump (0 = all)")
	showVersion := pflag.BoolP("version", "V", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("sigcore v%s\n", VERSION)
		return
	}

	if *kbDump {
		if err := dumpKB(*configFile, *kbLimit); err != nil {
			log.Fatalf("dump-kb failed: %v", err)
		}
		return
	}

	if *inputPath == "" {
		pflag.Usage()
		os.Exit(2)
	}

	synth, err := NewSynthesizer(*configFile)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	if err := synth.Run(*inputPath, *outputPath, *statsEvery); err != nil {
		log.Fatalf("synthesis failed: %v", err)
	}
}

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"reading-fluency-go/internal/fluency"
	"reading-fluency-go/internal/logger"
	"reading-fluency-go/internal/metrics"
	"reading-fluency-go/internal/storage"
	"reading-fluency-go/internal/transcription"
	"reading-fluency-go/internal/types"
)

var (
	ErrInvalidRequest    = errors.New("invalid attempt request")
	ErrInsufficientAudio = errors.New("insufficient audio")
)

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (json.RawMessage, error)
}

type AttemptSaver interface {
	SaveAttempt(ctx context.Context, a types.AttemptResult) error
}

type EventPublisher interface {
	PublishAttempt(ctx context.Context, a types.AttemptResult) error
}

type Options struct {
	HesitationSeconds float64
	MinAudioBytes     int
	Normalizer        transcription.Normalizer
	Metrics           *metrics.Metrics
	Now               func() time.Time
	NewID             func() string
}

// AttemptRequest is one recorded answer to one test item.
type AttemptRequest struct {
	UserID     string
	CohortID   string
	TestType   string
	TargetText string
	Filename   string
	Audio      []byte
}

type Processor struct {
	audio  storage.AudioStore
	asr    Transcriber
	saver  AttemptSaver
	events EventPublisher
	opts   Options
}

// New wires a processor. events may be nil. Zero-valued options take their
// defaults; a zero HesitationSeconds means fluency.DefaultHesitationSeconds.
func New(audio storage.AudioStore, asr Transcriber, saver AttemptSaver, events EventPublisher, opts Options) *Processor {
	if opts.HesitationSeconds == 0 {
		opts.HesitationSeconds = fluency.DefaultHesitationSeconds
	}
	if opts.Normalizer == (transcription.Normalizer{}) {
		opts.Normalizer = transcription.NewNormalizer()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Processor{audio: audio, asr: asr, saver: saver, events: events, opts: opts}
}

// ProcessAttempt uploads and transcribes the recording concurrently, scores
// the transcript and stores the result. If either upload or transcription
// fails, the attempt is stored as a single processing_error outcome with no
// partial data. Recordings below MinAudioBytes are rejected unsaved with
// ErrInsufficientAudio.
func (p *Processor) ProcessAttempt(ctx context.Context, req AttemptRequest) (types.AttemptResult, error) {
	start := time.Now()
	testType, ok := types.ParseTestType(req.TestType)
	if !ok {
		return types.AttemptResult{}, fmt.Errorf("%w: unknown test type %q", ErrInvalidRequest, req.TestType)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return types.AttemptResult{}, fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}

	res := types.AttemptResult{
		ID:         p.opts.NewID(),
		TestType:   testType,
		UserID:     req.UserID,
		CohortID:   req.CohortID,
		TargetText: req.TargetText,
		CreatedAt:  p.opts.Now().UTC(),
	}
	log := logger.New().WithAttempt(res.ID, res.UserID, string(testType))

	if len(req.Audio) < p.opts.MinAudioBytes {
		res.ErrorType = types.ErrorInsufficientAudio
		log.WithField("bytes", len(req.Audio)).Warn("recording too short")
		p.opts.Metrics.RecordAttempt(string(testType), string(res.ErrorType), false, time.Since(start).Seconds())
		return res, ErrInsufficientAudio
	}

	var (
		audioURL string
		raw      json.RawMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := p.audio.Put(gctx, audioKey(res, req.Filename), req.Audio)
		if err != nil {
			return fmt.Errorf("upload audio: %w", err)
		}
		audioURL = u
		return nil
	})
	g.Go(func() error {
		r, err := p.asr.Transcribe(gctx, filenameOr(req.Filename), req.Audio)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		raw = r
		return nil
	})

	hesitation := false
	if err := g.Wait(); err != nil {
		log.WithField("error", err.Error()).Error("attempt processing failed")
		res.ErrorType = types.ErrorProcessing
	} else {
		ct := p.opts.Normalizer.Normalize(raw)
		a := fluency.Assess(ct, req.TargetText, p.opts.HesitationSeconds)
		hesitation = a.Hesitation
		accuracy := 0.0
		if a.IsCorrect {
			accuracy = 100
		}
		correct := a.IsCorrect
		res.IsCorrect = &correct
		res.Accuracy = &accuracy
		res.ErrorType = a.ErrorKind
		res.StudentAnswer = ct.Text
		res.TranscriptionRaw = raw
		res.AudioURL = audioURL
		log.WithField("is_correct", correct).WithField("error_type", string(a.ErrorKind)).Info("attempt scored")
	}

	p.opts.Metrics.RecordAttempt(string(testType), outcome(res), hesitation, time.Since(start).Seconds())

	if err := p.saver.SaveAttempt(ctx, res); err != nil {
		return res, fmt.Errorf("save attempt: %w", err)
	}
	if p.events != nil {
		if err := p.events.PublishAttempt(ctx, res); err != nil {
			log.WithField("error", err.Error()).Warn("attempt event not published")
		}
	}
	return res, nil
}

func outcome(a types.AttemptResult) string {
	switch {
	case a.ErrorType != types.ErrorNone:
		return string(a.ErrorType)
	case a.IsCorrect != nil && *a.IsCorrect:
		return "correct"
	default:
		return "incorrect"
	}
}

func filenameOr(name string) string {
	if name == "" {
		return "recording.webm"
	}
	return path.Base(name)
}

func audioKey(a types.AttemptResult, filename string) string {
	ext := path.Ext(filenameOr(filename))
	return path.Join(a.UserID, string(a.TestType), a.ID+ext)
}

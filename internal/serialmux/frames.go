package serialmux

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidewise/drivers-sonar-base/internal/monitoring"
	"github.com/tidewise/drivers-sonar-base/internal/sonar"
)

const (
	EventTypeSample  = "sample"
	EventTypeComment = "comment"
	EventTypeEmpty   = "empty"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload returns the event type of one line. Samples are JSON
// objects, lines starting with '#' are comments in recorded files.
func ClassifyPayload(payload string) string {
	trimmed := strings.TrimSpace(payload)
	switch {
	case trimmed == "":
		return EventTypeEmpty
	case strings.HasPrefix(trimmed, "#"):
		return EventTypeComment
	case strings.HasPrefix(trimmed, "{"):
		return EventTypeSample
	default:
		return EventTypeUnknown
	}
}

// Summarize shortens a payload for display: samples are reduced to their
// geometry, other lines are truncated.
func Summarize(payload string) string {
	if ClassifyPayload(payload) == EventTypeSample {
		s, err := sonar.ParseSample([]byte(payload))
		if err != nil {
			return fmt.Sprintf("invalid sample: %v", err)
		}
		return fmt.Sprintf("sample time=%s beams=%d bins=%d", s.Time.Format("15:04:05.000"), s.BeamCount, s.BinCount)
	}
	const maxLen = 200
	if len(payload) > maxLen {
		return payload[:maxLen] + "..."
	}
	return payload
}

// SampleHandler consumes decoded samples.
type SampleHandler func(*sonar.Sample) error

// HandleEvent decodes payload and passes samples to h. Comments and empty
// lines are ignored, anything else is logged and skipped.
func HandleEvent(payload string, h SampleHandler) error {
	switch ClassifyPayload(payload) {
	case EventTypeSample:
		s, err := sonar.ParseSample([]byte(payload))
		if err != nil {
			return fmt.Errorf("failed to decode sample: %w", err)
		}
		if err := h(s); err != nil {
			return fmt.Errorf("failed to handle sample: %w", err)
		}
	case EventTypeComment, EventTypeEmpty:
	default:
		monitoring.Logf("unknown event type: %s", Summarize(payload))
	}
	return nil
}

// Consume handles every line delivered on lines until the channel closes
// or ctx is done. Handler errors are logged and do not stop consumption.
func Consume(ctx context.Context, lines <-chan string, h SampleHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := HandleEvent(line, h); err != nil {
				monitoring.Logf("error handling event: %v", err)
			}
		}
	}
}

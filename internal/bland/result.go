package bland

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/phonescreen-ai/phonescreen/internal/domain"
)

// MetadataScreenID is the call metadata key carrying the phone screen id.
const MetadataScreenID = "phone_screen_id"

// CallResult is the vendor view of a call, from the webhook or GetCall.
type CallResult struct {
	CallID       string
	Status       string
	Completed    bool
	AnsweredBy   string
	Transcript   string
	RecordingURL string
	Duration     time.Duration
	ErrorMessage string
	Metadata     map[string]string
}

type transcriptEntry struct {
	User string `mapstructure:"user"`
	Text string `mapstructure:"text"`
}

type rawCall struct {
	CallID                 string            `mapstructure:"call_id"`
	Status                 string            `mapstructure:"status"`
	QueueStatus            string            `mapstructure:"queue_status"`
	Completed              bool              `mapstructure:"completed"`
	AnsweredBy             string            `mapstructure:"answered_by"`
	ConcatenatedTranscript string            `mapstructure:"concatenated_transcript"`
	Transcripts            []transcriptEntry `mapstructure:"transcripts"`
	RecordingURL           string            `mapstructure:"recording_url"`
	CallLength             float64           `mapstructure:"call_length"`
	ErrorMessage           string            `mapstructure:"error_message"`
	Metadata               map[string]any    `mapstructure:"metadata"`
}

func decodeCall(raw map[string]any) (*CallResult, error) {
	var call rawCall
	cfg := &mapstructure.DecoderConfig{
		Result:           &call,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode call payload: %w", err)
	}

	call.CallID = strings.TrimSpace(call.CallID)
	if call.CallID == "" {
		return nil, errors.New("decode call payload: call_id is missing")
	}

	status := call.Status
	if status == "" {
		status = call.QueueStatus
	}

	transcript := strings.TrimSpace(call.ConcatenatedTranscript)
	if transcript == "" {
		transcript = joinTranscript(call.Transcripts)
	}

	metadata := make(map[string]string, len(call.Metadata))
	for k, v := range call.Metadata {
		if v == nil {
			continue
		}
		metadata[k] = fmt.Sprint(v)
	}

	return &CallResult{
		CallID:       call.CallID,
		Status:       strings.ToLower(strings.TrimSpace(status)),
		Completed:    call.Completed,
		AnsweredBy:   strings.ToLower(strings.TrimSpace(call.AnsweredBy)),
		Transcript:   transcript,
		RecordingURL: call.RecordingURL,
		// call_length is reported in minutes.
		Duration:     time.Duration(math.Round(call.CallLength*60)) * time.Second,
		ErrorMessage: strings.TrimSpace(call.ErrorMessage),
		Metadata:     metadata,
	}, nil
}

func joinTranscript(entries []transcriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		speaker := e.User
		if speaker == "" {
			speaker = "unknown"
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(text)
	}
	return b.String()
}

// ScreenID returns the phone screen id the call was placed for, if any.
func (r *CallResult) ScreenID() string {
	return strings.TrimSpace(r.Metadata[MetadataScreenID])
}

// Outcome maps the vendor state onto a phone screen status.
func (r *CallResult) Outcome() domain.ScreenStatus {
	switch r.Status {
	case "failed", "error":
		return domain.ScreenFailed
	case "no-answer", "no_answer", "busy", "canceled", "cancelled":
		return domain.ScreenNoAnswer
	}

	if r.AnsweredBy == "voicemail" {
		return domain.ScreenNoAnswer
	}

	if !r.Completed && r.Status != "completed" && r.Status != "complete" {
		return domain.ScreenInProgress
	}

	if strings.TrimSpace(r.Transcript) == "" {
		if r.ErrorMessage != "" {
			return domain.ScreenFailed
		}
		return domain.ScreenNoAnswer
	}

	return domain.ScreenCompleted
}

package queue

import (
	"errors"
	"fmt"
	"strings"

	"clipforge/internal/language"
	"clipforge/internal/media"
	"clipforge/internal/services"
	"clipforge/internal/subtitles"
)

// Payload keys understood by the pipeline.
const (
	FieldVideoID    = "video_id"
	FieldSourcePath = "source_path"
	FieldFormatID   = "format_id"
	FieldStyleID    = "style_id"
	FieldHighlights = "highlights"
	FieldClipPath   = "clip_path"
	FieldWords      = "words"
	FieldLanguage   = "language"
)

// ValidationError reports malformed task input. It matches
// services.ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid task: " + e.Reason
	}
	return fmt.Sprintf("invalid task: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return services.ErrValidation
}

// Submission is caller input for Queue.Add. ID is optional.
type Submission struct {
	ID      string
	Kind    string
	Payload Payload
}

// normalizeSubmission checks the kind and the fields it requires, and fills
// defaults. The returned payload is a copy.
func normalizeSubmission(sub Submission) (Kind, Payload, error) {
	kind, ok := ParseKind(sub.Kind)
	if !ok {
		return "", nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", sub.Kind)}
	}
	payload := sub.Payload.Clone()

	if payload.String(FieldVideoID) == "" {
		return "", nil, &ValidationError{Field: FieldVideoID, Reason: "required"}
	}

	if raw := payload.String(FieldLanguage); raw != "" {
		code := language.ToISO2(raw)
		if code == "" {
			return "", nil, &ValidationError{Field: FieldLanguage, Reason: fmt.Sprintf("unknown language %q", raw)}
		}
		payload[FieldLanguage] = code
	}

	switch kind {
	case KindAnalyze:
	case KindGenerateClips:
		raw := payload.String(FieldFormatID)
		if raw == "" {
			return "", nil, &ValidationError{Field: FieldFormatID, Reason: "required"}
		}
		format, err := media.ParseFormat(raw)
		if err != nil {
			return "", nil, &ValidationError{Field: FieldFormatID, Reason: err.Error()}
		}
		payload[FieldFormatID] = format.ID
		if err := normalizeStyle(payload); err != nil {
			return "", nil, err
		}
		if _, err := payload.Decode(FieldHighlights, &[]map[string]any{}); err != nil {
			return "", nil, &ValidationError{Field: FieldHighlights, Reason: "must be a list of objects"}
		}
	case KindBurnSubtitles:
		if payload.String(FieldClipPath) == "" {
			return "", nil, &ValidationError{Field: FieldClipPath, Reason: "required"}
		}
		if err := normalizeStyle(payload); err != nil {
			return "", nil, err
		}
		if _, err := payload.Decode(FieldWords, &[]subtitles.Word{}); err != nil {
			return "", nil, &ValidationError{Field: FieldWords, Reason: "must be a list of words"}
		}
	}
	return kind, payload, nil
}

func normalizeStyle(payload Payload) error {
	raw := payload.String(FieldStyleID)
	if raw == "" {
		payload[FieldStyleID] = subtitles.DefaultStyle.String()
		return nil
	}
	style, err := subtitles.ParseStyle(raw)
	if err != nil {
		return &ValidationError{Field: FieldStyleID, Reason: err.Error()}
	}
	payload[FieldStyleID] = style.String()
	return nil
}

// IsValidation reports whether err was caused by rejected task input.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, services.ErrValidation)
}

func validateID(id string) error {
	if strings.ContainsAny(id, " \t\r\n/\\:") {
		return &ValidationError{Field: "id", Reason: "must not contain whitespace, slashes or colons"}
	}
	return nil
}

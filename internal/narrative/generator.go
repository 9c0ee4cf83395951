package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/metrics"
)

var errEmptyResponse = errors.New("model returned an empty response")

// Completer sends one prompt to one model
type Completer interface {
	Complete(ctx context.Context, apiKey, model, system, user string) (string, error)
}

// KeyValidator checks a credential against the provider
type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey string) error
}

// Request is one narrative generation
type Request struct {
	APIKey string
	Models []string // tried in order
	System string
	User   string
}

// Attempt records one model try
type Attempt struct {
	Model string     `json:"model"`
	Class ErrorClass `json:"class"`
	Err   error      `json:"-"`
}

// Response is the generated narrative and the model that produced it
type Response struct {
	Text     string
	Model    string
	Attempts []Attempt
}

// GenerationError carries every failed attempt
type GenerationError struct {
	Attempts []Attempt
	cause    error
}

func (e *GenerationError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Model, a.Class))
	}
	return fmt.Sprintf("%v [%s]", e.cause, strings.Join(parts, ", "))
}

func (e *GenerationError) Unwrap() error {
	return e.cause
}

// Generator tries candidate models in order until one answers
type Generator struct {
	completer Completer
}

func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

// Candidates merges an override with the configured list, dropping duplicates
func Candidates(override string, configured []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range append([]string{override}, configured...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Generate stops at the first success. Auth failures and cancellation end the
// run at once; every other class moves on to the next model.
func (g *Generator) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Models) == 0 {
		return nil, ErrNoModels
	}

	var attempts []Attempt
	for _, model := range req.Models {
		text, err := g.completer.Complete(ctx, req.APIKey, model, req.System, req.User)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyResponse
		}

		class := Classify(err)
		metrics.ModelAttemptsTotal.WithLabelValues(model, string(class)).Inc()
		attempts = append(attempts, Attempt{Model: model, Class: class, Err: err})

		if err == nil {
			return &Response{Text: strings.TrimSpace(text), Model: model, Attempts: attempts}, nil
		}

		logrus.WithFields(logrus.Fields{"model": model, "class": class}).Warnf("Narrative attempt failed: %v", err)

		if class.Fatal() {
			cause := err
			if class == ClassAuth {
				cause = ErrInvalidKey
			}
			return nil, &GenerationError{Attempts: attempts, cause: cause}
		}
	}

	return nil, &GenerationError{Attempts: attempts, cause: ErrAllModelsFailed}
}

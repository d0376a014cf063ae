package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalModel is one model installed on the Ollama server.
type LocalModel struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	ModifiedAt    time.Time `json:"modified_at"`
	ParameterSize string    `json:"-"`
	Quantization  string    `json:"-"`
}

// PullProgress is one progress update while pulling a model.
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// ListModels returns the models installed on the server.
func (o *Ollama) ListModels(ctx context.Context) ([]LocalModel, error) {
	resp, err := o.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, o.statusError(resp, "")
	}
	defer resp.Body.Close()

	var payload struct {
		Models []struct {
			LocalModel
			Details struct {
				ParameterSize     string `json:"parameter_size"`
				QuantizationLevel string `json:"quantization_level"`
			} `json:"details"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding ollama model list: %w", err)
	}

	models := make([]LocalModel, 0, len(payload.Models))
	for _, m := range payload.Models {
		model := m.LocalModel
		model.ParameterSize = m.Details.ParameterSize
		model.Quantization = m.Details.QuantizationLevel
		models = append(models, model)
	}
	return models, nil
}

// PullModel downloads name, reporting each progress update to progress when
// it is non-nil.
func (o *Ollama) PullModel(ctx context.Context, name string, progress func(PullProgress)) error {
	resp, err := o.do(ctx, http.MethodPost, "/api/pull", map[string]any{"model": name, "stream": true})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return o.statusError(resp, "")
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var update PullProgress
		if err := dec.Decode(&update); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return transportError(ProviderOllama, err, "")
		}
		if update.Error != "" {
			return &Error{Kind: KindUpstream, Provider: ProviderOllama, Message: update.Error}
		}
		if progress != nil {
			progress(update)
		}
		if update.Status == "success" {
			return nil
		}
	}
}

// DeleteModel removes name from the server.
func (o *Ollama) DeleteModel(ctx context.Context, name string) error {
	resp, err := o.do(ctx, http.MethodDelete, "/api/delete", map[string]string{"model": name})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return o.statusError(resp, "")
	}
	resp.Body.Close()
	return nil
}

package gemini

import (
	"errors"
	"testing"

	"github.com/hupe1980/prospectmesh/model"
	"google.golang.org/genai"
)

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name          string
		in            error
		wantTransient bool
	}{
		{name: "api_429", in: genai.APIError{Code: 429}, wantTransient: true},
		{name: "api_503", in: genai.APIError{Code: 503}, wantTransient: true},
		{name: "api_400", in: genai.APIError{Code: 400}, wantTransient: false},
		{name: "plain", in: errors.New("boom"), wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(classifyErr(tt.in), model.ErrTransient)
			if got != tt.wantTransient {
				t.Fatalf("transient=%v want %v", got, tt.wantTransient)
			}
		})
	}
}

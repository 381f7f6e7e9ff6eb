package pooltool

import (
	"errors"

	"github.com/flexigpt/llmtools-go"

	"github.com/flexigpt/skillpool-go/spec"
)

// NewPoolRegistry creates an llmtools-go Registry and registers ONLY the pipeline tools into it.
func NewPoolRegistry(
	p spec.Pipeline,
	opts ...llmtools.RegistryOption,
) (*llmtools.Registry, error) {
	if p == nil {
		return nil, errors.New("nil pipeline")
	}
	r, err := llmtools.NewRegistry(opts...)
	if err != nil {
		return nil, err
	}
	if err := Register(r, p); err != nil {
		return nil, err
	}
	return r, nil
}

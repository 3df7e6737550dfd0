// Package options contains flags and options for initializing the docmind server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	docmindsvc "github.com/kart-io/docmind/internal/docmind"
	cliflag "github.com/kart-io/docmind/pkg/app/cliflag"
	dbopts "github.com/kart-io/docmind/pkg/options/database"
	docmindopts "github.com/kart-io/docmind/pkg/options/docmind"
	llmopts "github.com/kart-io/docmind/pkg/options/llm"
	logopts "github.com/kart-io/docmind/pkg/options/logger"
	milvusopts "github.com/kart-io/docmind/pkg/options/milvus"
	redisopts "github.com/kart-io/docmind/pkg/options/redis"
	httpopts "github.com/kart-io/docmind/pkg/options/server/http"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// DatabaseOptions contains the relational store configuration.
	DatabaseOptions *dbopts.Options `json:"database" mapstructure:"database"`

	// RedisOptions contains the optional cache and job store configuration.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// MilvusOptions contains Milvus configuration, used when the vector backend is milvus.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// VectorOptions selects the vector index backend.
	VectorOptions *docmindopts.VectorOptions `json:"vector" mapstructure:"vector"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// PipelineOptions contains summarization pipeline configuration.
	PipelineOptions *docmindopts.PipelineOptions `json:"pipeline" mapstructure:"pipeline"`

	// QAOptions contains question answering configuration.
	QAOptions *docmindopts.QAOptions `json:"qa" mapstructure:"qa"`

	// TranslateOptions contains translation configuration.
	TranslateOptions *docmindopts.TranslateOptions `json:"translate" mapstructure:"translate"`

	// QueueOptions contains job queue and generation concurrency configuration.
	QueueOptions *docmindopts.QueueOptions `json:"queue" mapstructure:"queue"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		DatabaseOptions:  dbopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		VectorOptions:    docmindopts.NewVectorOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		PipelineOptions:  docmindopts.NewPipelineOptions(),
		QAOptions:        docmindopts.NewQAOptions(),
		TranslateOptions: docmindopts.NewTranslateOptions(),
		QueueOptions:     docmindopts.NewQueueOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.DatabaseOptions.AddFlags(fss.FlagSet("database"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.VectorOptions.AddFlags(fss.FlagSet("vector"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.ChatOptions.AddFlags(fss.FlagSet("chat"))
	o.PipelineOptions.AddFlags(fss.FlagSet("pipeline"))
	o.QAOptions.AddFlags(fss.FlagSet("qa"))
	o.TranslateOptions.AddFlags(fss.FlagSet("translate"))
	o.QueueOptions.AddFlags(fss.FlagSet("queue"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.DatabaseOptions.Complete(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.DatabaseOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.VectorOptions.Validate()...)
	if o.VectorOptions.Backend == docmindopts.VectorBackendMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.PipelineOptions.Validate()...)
	errs = append(errs, o.QAOptions.Validate()...)
	errs = append(errs, o.TranslateOptions.Validate()...)
	errs = append(errs, o.QueueOptions.Validate()...)

	return utilerrors.NewAggregate(errs)
}

// Config builds a docmindsvc.Config based on ServerOptions.
func (o *ServerOptions) Config() (*docmindsvc.Config, error) {
	return &docmindsvc.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		DatabaseOptions:  o.DatabaseOptions,
		RedisOptions:     o.RedisOptions,
		MilvusOptions:    o.MilvusOptions,
		VectorOptions:    o.VectorOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		PipelineOptions:  o.PipelineOptions,
		QAOptions:        o.QAOptions,
		TranslateOptions: o.TranslateOptions,
		QueueOptions:     o.QueueOptions,
	}, nil
}

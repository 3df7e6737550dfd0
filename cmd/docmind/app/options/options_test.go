package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docmindopts "github.com/kart-io/docmind/pkg/options/docmind"
)

func TestDefaultsAreValid(t *testing.T) {
	o := NewServerOptions()
	require.NoError(t, o.Complete())
	assert.NoError(t, o.Validate())
}

func TestFlagSections(t *testing.T) {
	fss := NewServerOptions().Flags()
	for _, name := range []string{"http", "log", "database", "redis", "milvus", "vector", "embedding", "chat", "pipeline", "qa", "translate", "queue"} {
		assert.Contains(t, fss.Order, name)
	}

	fs := fss.FlagSet("pipeline")
	require.NoError(t, fs.Parse([]string{"--pipeline.size-threshold=12"}))
}

func TestFlagsBindToOptions(t *testing.T) {
	o := NewServerOptions()
	fss := o.Flags()
	require.NoError(t, fss.FlagSet("vector").Parse([]string{"--vector.backend=milvus"}))
	require.NoError(t, fss.FlagSet("queue").Parse([]string{"--queue.batch-size=9"}))

	assert.Equal(t, docmindopts.VectorBackendMilvus, o.VectorOptions.Backend)
	assert.Equal(t, 9, o.QueueOptions.BatchSize)
}

func TestValidateAggregates(t *testing.T) {
	o := NewServerOptions()
	o.VectorOptions.Backend = "faiss"
	o.PipelineOptions.GroupSize = 0

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "faiss")
	assert.Contains(t, err.Error(), "group-size")
}

func TestConfig(t *testing.T) {
	o := NewServerOptions()
	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.QAOptions, cfg.QAOptions)
	assert.Same(t, o.HTTPOptions, cfg.HTTPOptions)
}

// Package docmind provides the summarization, retrieval and queue options.
package docmind

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docmind/pkg/options"
)

var (
	_ options.IOptions = (*PipelineOptions)(nil)
	_ options.IOptions = (*QAOptions)(nil)
	_ options.IOptions = (*QueueOptions)(nil)
	_ options.IOptions = (*TranslateOptions)(nil)
	_ options.IOptions = (*VectorOptions)(nil)
)

// PipelineOptions 摘要流水线配置。
type PipelineOptions struct {
	// SizeThreshold 页数不超过该值时按页切分。
	SizeThreshold int `json:"size-threshold" mapstructure:"size-threshold"`
	// GroupSize 超过阈值时每个单元包含的页数。
	GroupSize int `json:"group-size" mapstructure:"group-size"`
	// AppendixScanPages 附录检测扫描的末尾页数。
	AppendixScanPages int `json:"appendix-scan-pages" mapstructure:"appendix-scan-pages"`
	// MaxTextLength 单元文本的字符上限。
	MaxTextLength int `json:"max-text-length" mapstructure:"max-text-length"`
	// MinTextLength 低于该长度的文本以占位符替代。
	MinTextLength int `json:"min-text-length" mapstructure:"min-text-length"`
	// PrimaryAttempts / PrimaryThreshold 第一层重试。
	PrimaryAttempts  int     `json:"primary-attempts" mapstructure:"primary-attempts"`
	PrimaryThreshold float64 `json:"primary-threshold" mapstructure:"primary-threshold"`
	// SecondaryAttempts / SecondaryThreshold 第二层重试。
	SecondaryAttempts  int     `json:"secondary-attempts" mapstructure:"secondary-attempts"`
	SecondaryThreshold float64 `json:"secondary-threshold" mapstructure:"secondary-threshold"`
	// MergeBatchSize 每个中间摘要合并的单元数。
	MergeBatchSize int `json:"merge-batch-size" mapstructure:"merge-batch-size"`
	// IntermediateTokens / FinalTokens 合并阶段的生成长度。
	IntermediateTokens int `json:"intermediate-tokens" mapstructure:"intermediate-tokens"`
	FinalTokens        int `json:"final-tokens" mapstructure:"final-tokens"`
	// Temperature 生成温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	// WorkDir 下载文档的存放目录。
	WorkDir string `json:"work-dir" mapstructure:"work-dir"`
	// MaxDownloadBytes 单个文档的下载上限。
	MaxDownloadBytes int64 `json:"max-download-bytes" mapstructure:"max-download-bytes"`
}

// NewPipelineOptions 创建默认流水线配置。
func NewPipelineOptions() *PipelineOptions {
	return &PipelineOptions{
		SizeThreshold:      80,
		GroupSize:          5,
		AppendixScanPages:  7,
		MaxTextLength:      8000,
		MinTextLength:      50,
		PrimaryAttempts:    4,
		PrimaryThreshold:   0.70,
		SecondaryAttempts:  4,
		SecondaryThreshold: 0.65,
		MergeBatchSize:     5,
		IntermediateTokens: 1000,
		FinalTokens:        1500,
		Temperature:        0.3,
		WorkDir:            "temp_cache",
		MaxDownloadBytes:   100 << 20,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *PipelineOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "pipeline."
	fs.IntVar(&o.SizeThreshold, p+"size-threshold", o.SizeThreshold, "Documents with at most this many pages are summarized page by page.")
	fs.IntVar(&o.GroupSize, p+"group-size", o.GroupSize, "Pages per unit above the size threshold.")
	fs.IntVar(&o.AppendixScanPages, p+"appendix-scan-pages", o.AppendixScanPages, "Trailing pages scanned for appendix cues.")
	fs.IntVar(&o.MaxTextLength, p+"max-text-length", o.MaxTextLength, "Character cap applied to unit text before generation.")
	fs.IntVar(&o.MinTextLength, p+"min-text-length", o.MinTextLength, "Unit text shorter than this is replaced by a placeholder.")
	fs.IntVar(&o.PrimaryAttempts, p+"primary-attempts", o.PrimaryAttempts, "Generation attempts of the primary tier.")
	fs.Float64Var(&o.PrimaryThreshold, p+"primary-threshold", o.PrimaryThreshold, "Early stop score of the primary tier.")
	fs.IntVar(&o.SecondaryAttempts, p+"secondary-attempts", o.SecondaryAttempts, "Generation attempts of the secondary tier.")
	fs.Float64Var(&o.SecondaryThreshold, p+"secondary-threshold", o.SecondaryThreshold, "Acceptance score of the secondary tier.")
	fs.IntVar(&o.MergeBatchSize, p+"merge-batch-size", o.MergeBatchSize, "Unit summaries merged per intermediate summary.")
	fs.IntVar(&o.IntermediateTokens, p+"intermediate-tokens", o.IntermediateTokens, "Generation budget of an intermediate summary.")
	fs.IntVar(&o.FinalTokens, p+"final-tokens", o.FinalTokens, "Generation budget of the final summary.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Generation temperature.")
	fs.StringVar(&o.WorkDir, p+"work-dir", o.WorkDir, "Directory receiving downloaded documents.")
	fs.Int64Var(&o.MaxDownloadBytes, p+"max-download-bytes", o.MaxDownloadBytes, "Largest document accepted for download, in bytes.")
}

// Validate validates the pipeline options.
func (o *PipelineOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.SizeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.size-threshold must be positive"))
	}
	if o.GroupSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.group-size must be positive"))
	}
	if o.MaxTextLength <= o.MinTextLength {
		errs = append(errs, fmt.Errorf("pipeline.max-text-length must exceed min-text-length"))
	}
	if o.PrimaryAttempts <= 0 || o.SecondaryAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline attempts must be positive"))
	}
	if o.SecondaryThreshold > o.PrimaryThreshold {
		errs = append(errs, fmt.Errorf("pipeline.secondary-threshold must not exceed primary-threshold"))
	}
	if o.PrimaryThreshold <= 0 || o.PrimaryThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.primary-threshold must be in (0,1]"))
	}
	if o.MergeBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.merge-batch-size must be positive"))
	}
	if o.WorkDir == "" {
		errs = append(errs, fmt.Errorf("pipeline.work-dir is required"))
	}
	if o.MaxDownloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max-download-bytes must be positive"))
	}
	return errs
}

// QAOptions 问答引擎配置。
type QAOptions struct {
	// RelevanceThreshold 单元保留的最低综合分。
	RelevanceThreshold float64 `json:"relevance-threshold" mapstructure:"relevance-threshold"`
	// ShortlistSize 重排序前保留的单元数。
	ShortlistSize int `json:"shortlist-size" mapstructure:"shortlist-size"`
	// EvidenceSize 重排序后保留的单元数。
	EvidenceSize int `json:"evidence-size" mapstructure:"evidence-size"`
	// GeneralTopK 通用问题的文档数。
	GeneralTopK int `json:"general-top-k" mapstructure:"general-top-k"`
	// FastAcceptThreshold 快速分类直接接受的相似度。
	FastAcceptThreshold float64 `json:"fast-accept-threshold" mapstructure:"fast-accept-threshold"`
	// SingleStage 只使用快速分类（阈值 0.75）。
	SingleStage bool `json:"single-stage" mapstructure:"single-stage"`
	// ClassifierTimeout 生成式分类器的单次超时。
	ClassifierTimeout time.Duration `json:"classifier-timeout" mapstructure:"classifier-timeout"`
	// ClassifierAttempts 生成式分类器的尝试次数。
	ClassifierAttempts int `json:"classifier-attempts" mapstructure:"classifier-attempts"`
	// TrustGenerative 生成式分类结果直接采用的置信度。
	TrustGenerative float64 `json:"trust-generative" mapstructure:"trust-generative"`
	// PreferGenerative 两种分类结论不一致时采用生成式结果的置信度。
	PreferGenerative float64 `json:"prefer-generative" mapstructure:"prefer-generative"`
	// Temperature 回答生成温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	// AnswerTokens 回答生成长度。
	AnswerTokens int `json:"answer-tokens" mapstructure:"answer-tokens"`
	// EnableRerank 是否启用重排序。
	EnableRerank bool `json:"enable-rerank" mapstructure:"enable-rerank"`
}

// NewQAOptions 创建默认问答配置。
func NewQAOptions() *QAOptions {
	return &QAOptions{
		RelevanceThreshold:  0.4,
		ShortlistSize:       5,
		EvidenceSize:        3,
		GeneralTopK:         5,
		FastAcceptThreshold: 0.85,
		ClassifierTimeout:   10 * time.Second,
		ClassifierAttempts:  2,
		TrustGenerative:     0.75,
		PreferGenerative:    0.6,
		Temperature:         0.2,
		AnswerTokens:        500,
		EnableRerank:        true,
	}
}

// AddFlags adds flags for QA options to the specified FlagSet.
func (o *QAOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "qa."
	fs.Float64Var(&o.RelevanceThreshold, p+"relevance-threshold", o.RelevanceThreshold, "Minimum combined score of a unit kept as evidence.")
	fs.IntVar(&o.ShortlistSize, p+"shortlist-size", o.ShortlistSize, "Units kept before reranking.")
	fs.IntVar(&o.EvidenceSize, p+"evidence-size", o.EvidenceSize, "Units kept after reranking.")
	fs.IntVar(&o.GeneralTopK, p+"general-top-k", o.GeneralTopK, "Documents used for cross-document questions.")
	fs.Float64Var(&o.FastAcceptThreshold, p+"fast-accept-threshold", o.FastAcceptThreshold, "Similarity at which the example based classifier is trusted.")
	fs.BoolVar(&o.SingleStage, p+"single-stage", o.SingleStage, "Classify with labeled examples only.")
	fs.DurationVar(&o.ClassifierTimeout, p+"classifier-timeout", o.ClassifierTimeout, "Timeout of one generative classification call.")
	fs.IntVar(&o.ClassifierAttempts, p+"classifier-attempts", o.ClassifierAttempts, "Generative classification attempts.")
	fs.Float64Var(&o.TrustGenerative, p+"trust-generative", o.TrustGenerative, "Confidence at which a generative classification is used as is.")
	fs.Float64Var(&o.PreferGenerative, p+"prefer-generative", o.PreferGenerative, "Confidence at which the generative label wins a disagreement.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Answer generation temperature.")
	fs.IntVar(&o.AnswerTokens, p+"answer-tokens", o.AnswerTokens, "Generation budget of an answer.")
	fs.BoolVar(&o.EnableRerank, p+"enable-rerank", o.EnableRerank, "Rerank the evidence shortlist.")
}

// Validate validates the QA options.
func (o *QAOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ShortlistSize <= 0 || o.EvidenceSize <= 0 {
		errs = append(errs, fmt.Errorf("qa shortlist and evidence sizes must be positive"))
	}
	if o.EvidenceSize > o.ShortlistSize {
		errs = append(errs, fmt.Errorf("qa.evidence-size must not exceed qa.shortlist-size"))
	}
	if o.ClassifierAttempts <= 0 {
		errs = append(errs, fmt.Errorf("qa.classifier-attempts must be positive"))
	}
	if o.TrustGenerative < 0 || o.TrustGenerative > 1 || o.PreferGenerative < 0 || o.PreferGenerative > 1 {
		errs = append(errs, fmt.Errorf("qa generative confidences must be in [0,1]"))
	}
	if o.PreferGenerative > o.TrustGenerative {
		errs = append(errs, fmt.Errorf("qa.prefer-generative must not exceed qa.trust-generative"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("qa.temperature must be in [0,2]"))
	}
	return errs
}

// QueueOptions 任务队列配置。
type QueueOptions struct {
	// BatchSize 批量处理触发的任务数。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`
	// IdleFlush 批次空闲等待上限。
	IdleFlush time.Duration `json:"idle-flush" mapstructure:"idle-flush"`
	// GenerationWorkers 生成服务并发槽位。
	GenerationWorkers int `json:"generation-workers" mapstructure:"generation-workers"`
	// GenerationTimeout 单次生成调用超时。
	GenerationTimeout time.Duration `json:"generation-timeout" mapstructure:"generation-timeout"`
}

// NewQueueOptions 创建默认队列配置。
func NewQueueOptions() *QueueOptions {
	return &QueueOptions{
		BatchSize:         5,
		IdleFlush:         10 * time.Second,
		GenerationWorkers: 2,
		GenerationTimeout: 3 * time.Minute,
	}
}

// AddFlags adds flags for queue options to the specified FlagSet.
func (o *QueueOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "queue."
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Jobs collected before a batch is processed.")
	fs.DurationVar(&o.IdleFlush, p+"idle-flush", o.IdleFlush, "Idle time after which a partial batch is processed.")
	fs.IntVar(&o.GenerationWorkers, p+"generation-workers", o.GenerationWorkers, "Concurrent generation calls.")
	fs.DurationVar(&o.GenerationTimeout, p+"generation-timeout", o.GenerationTimeout, "Timeout of one generation call including queueing.")
}

// Validate validates the queue options.
func (o *QueueOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("queue.batch-size must be positive"))
	}
	if o.IdleFlush <= 0 {
		errs = append(errs, fmt.Errorf("queue.idle-flush must be positive"))
	}
	if o.GenerationWorkers <= 0 {
		errs = append(errs, fmt.Errorf("queue.generation-workers must be positive"))
	}
	return errs
}

// TranslateOptions 语言检测与翻译配置。
type TranslateOptions struct {
	// Source 需要翻译的语言。
	Source string `json:"source" mapstructure:"source"`
	// Target 目标语言。
	Target string `json:"target" mapstructure:"target"`
	// Languages 检测器支持的语言（ISO 639-1）。
	Languages []string `json:"languages" mapstructure:"languages"`
	// Model 翻译使用的模型。
	Model string `json:"model" mapstructure:"model"`
	// MaxTokens 翻译生成长度。
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`
}

// NewTranslateOptions 创建默认翻译配置。
func NewTranslateOptions() *TranslateOptions {
	return &TranslateOptions{
		Source:    "en",
		Target:    "fr",
		Languages: []string{"en", "fr", "de", "es", "it"},
		Model:     "mistral:instruct",
		MaxTokens: 600,
	}
}

// AddFlags adds flags for translation options to the specified FlagSet.
func (o *TranslateOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "translate."
	fs.StringVar(&o.Source, p+"source", o.Source, "Language translated to the target language.")
	fs.StringVar(&o.Target, p+"target", o.Target, "Language of every persisted summary.")
	fs.StringSliceVar(&o.Languages, p+"languages", o.Languages, "Languages known to the detector (ISO 639-1).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model used for translation.")
	fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Generation budget of a translation.")
}

// Validate validates the translation options.
func (o *TranslateOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Source == "" || o.Target == "" {
		errs = append(errs, fmt.Errorf("translate.source and translate.target are required"))
	}
	if o.Source == o.Target {
		errs = append(errs, fmt.Errorf("translate.source and translate.target must differ"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("translate.model is required"))
	}
	return errs
}

// Vector index backends.
const (
	VectorBackendMemory = "memory"
	VectorBackendMilvus = "milvus"
)

// VectorOptions 向量索引配置。
type VectorOptions struct {
	// Backend 选择 memory 或 milvus。
	Backend string `json:"backend" mapstructure:"backend"`
}

// NewVectorOptions 创建默认向量索引配置。
func NewVectorOptions() *VectorOptions {
	return &VectorOptions{Backend: VectorBackendMemory}
}

// AddFlags adds flags for the vector index options to the specified FlagSet.
func (o *VectorOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"vector.backend", o.Backend, "Vector index backend (memory|milvus).")
}

// Validate validates the vector index options.
func (o *VectorOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Backend != VectorBackendMemory && o.Backend != VectorBackendMilvus {
		return []error{fmt.Errorf("unsupported vector backend %q", o.Backend)}
	}
	return nil
}

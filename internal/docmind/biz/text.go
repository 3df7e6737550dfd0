package biz

import (
	"strings"
	"unicode/utf8"

	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
)

// EmptyPagePlaceholder 替代过短的单元文本，单元照常评分。
const EmptyPagePlaceholder = "[Contenu textuel insuffisant ou illisible sur cette partie du document.]"

// TextPreparer 在生成前规整单元文本。
type TextPreparer struct {
	// MaxRunes 文本上限。
	MaxRunes int
	// MinRunes 低于该长度时使用占位符。
	MinRunes int
}

// DefaultTextPreparer 返回默认配置：上限 8000，下限 50。
func DefaultTextPreparer() TextPreparer {
	return TextPreparer{MaxRunes: 8000, MinRunes: 50}
}

// Prepare 截断文本，过短时返回占位符。第二个返回值表示是否使用了占位符。
func (p TextPreparer) Prepare(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if p.MaxRunes > 0 {
		text = strings.TrimSpace(textutil.TruncateString(text, p.MaxRunes))
	}
	if utf8.RuneCountInString(text) < p.MinRunes {
		return EmptyPagePlaceholder, true
	}
	return text, false
}

package textutil

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// KeywordExtractor 基于词频提取关键词，过滤法语与英语停用词。
type KeywordExtractor struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
	minRunes     int
}

// NewKeywordExtractor 创建关键词提取器。
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{
		tokenPattern: regexp.MustCompile(`\p{L}[\p{L}\p{N}]*`),
		stopwords:    defaultStopwords(),
		minRunes:     3,
	}
}

// Tokens 返回文本中未被过滤的小写词元，保持原始顺序。
func (k *KeywordExtractor) Tokens(text string) []string {
	raw := k.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if utf8.RuneCountInString(tok) < k.minRunes {
			continue
		}
		if _, ok := k.stopwords[tok]; ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Extract 返回出现频率最高的 topN 个关键词。频率相同时先出现者优先。
func (k *KeywordExtractor) Extract(text string, topN int) []string {
	if topN <= 0 {
		return nil
	}

	type entry struct {
		word  string
		count int
		first int
	}
	index := make(map[string]*entry)
	var entries []*entry
	for pos, tok := range k.Tokens(text) {
		if e, ok := index[tok]; ok {
			e.count++
			continue
		}
		e := &entry{word: tok, count: 1, first: pos}
		index[tok] = e
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].first < entries[j].first
	})

	if topN > len(entries) {
		topN = len(entries)
	}
	out := make([]string, topN)
	for i := 0; i < topN; i++ {
		out[i] = entries[i].word
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		// fr
		"les", "des", "une", "est", "sont", "dans", "pour", "par", "sur", "avec", "sans", "que", "qui",
		"quoi", "dont", "où", "aux", "ces", "ses", "leur", "leurs", "son", "sa", "mais", "ou", "donc",
		"car", "pas", "plus", "moins", "très", "tout", "tous", "toute", "toutes", "cette", "cet", "ce",
		"été", "être", "avoir", "fait", "faire", "comme", "ainsi", "elle", "elles", "ils", "nous",
		"vous", "lui", "ont", "était", "entre", "aussi", "même", "autre", "autres", "peut", "selon",
		"chez", "vers", "afin", "lors", "dont", "notre", "votre", "nos", "vos", "celle", "celui",
		"ceux", "cela", "ceci", "quand", "alors", "encore", "déjà", "bien", "non", "oui",
		// en
		"the", "and", "for", "with", "that", "this", "these", "those", "from", "are", "was", "were",
		"been", "being", "into", "about", "between", "through", "during", "before", "after", "above",
		"below", "over", "under", "again", "further", "than", "such", "very", "can", "will", "just",
		"should", "now", "not", "but", "their", "there", "which", "also", "has", "have", "had", "its",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

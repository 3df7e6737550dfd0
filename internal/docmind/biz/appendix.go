package biz

import (
	"context"
	"regexp"
	"unicode/utf8"

	"github.com/kart-io/logger"
)

// PageLineReader 返回单页按版面顺序排列的非空行，页码从 1 开始。
type PageLineReader interface {
	PageLines(ctx context.Context, path string, page int) ([]string, error)
}

// appendixCue 匹配附录类标题，允许前置编号，如 "Annexe A"、"7. Bibliographie"。
var appendixCue = regexp.MustCompile(`(?i)^(?:[0-9ivx]+[.)]?\s+)?(?:appendix|appendices|annex|annexes|annexe|bibliography|bibliographie|glossary|glossaire|references|références)(?:\s|:|$)`)

const (
	maxCueRunes  = 80
	minBandLines = 3
)

// AppendixDetector 在文档末尾若干页中寻找附录起始位置。
type AppendixDetector struct {
	reader    PageLineReader
	scanPages int
}

// NewAppendixDetector 创建附录检测器，scanPages <= 0 时扫描最后 7 页。
func NewAppendixDetector(reader PageLineReader, scanPages int) *AppendixDetector {
	if scanPages <= 0 {
		scanPages = 7
	}
	return &AppendixDetector{reader: reader, scanPages: scanPages}
}

// Detect 返回第一个被排除页的下标（从 0 开始）；没有附录时返回 totalPages。
//
// 标题位于页面顶部或中部时从当前页开始排除，位于底部时从下一页开始排除。
func (d *AppendixDetector) Detect(ctx context.Context, path string, totalPages int) int {
	start := totalPages - d.scanPages
	if start < 0 {
		start = 0
	}

	for page := start; page < totalPages; page++ {
		lines, err := d.reader.PageLines(ctx, path, page+1)
		if err != nil {
			logger.Warnw("appendix scan skipped page", "path", path, "page", page+1, "error", err.Error())
			continue
		}
		band, ok := findCue(lines)
		if !ok {
			continue
		}

		cutoff := page
		if band == bandBottom {
			cutoff = page + 1
		}
		logger.Infow("appendix detected", "path", path, "page", page+1, "band", band, "cutoff", cutoff)
		return cutoff
	}
	return totalPages
}

type layoutBand string

const (
	bandTop    layoutBand = "top"
	bandMiddle layoutBand = "middle"
	bandBottom layoutBand = "bottom"
)

// findCue 返回首个附录标题所在的版面区域。顶部与底部各占页面行数的五分之一，至少 3 行。
func findCue(lines []string) (layoutBand, bool) {
	n := len(lines)
	size := n / 5
	if size < minBandLines {
		size = minBandLines
	}

	for i, line := range lines {
		if utf8.RuneCountInString(line) > maxCueRunes || !appendixCue.MatchString(line) {
			continue
		}
		switch {
		case i < size:
			return bandTop, true
		case i >= n-size:
			return bandBottom, true
		default:
			return bandMiddle, true
		}
	}
	return "", false
}

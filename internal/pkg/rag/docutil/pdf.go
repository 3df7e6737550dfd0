package docutil

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrPDFToolNotFound poppler 工具未安装。
var ErrPDFToolNotFound = errors.New("pdftotext/pdfinfo not found in PATH (install poppler-utils)")

// CommandRunner 执行外部命令并返回标准输出，测试中可替换。
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner 使用 os/exec 执行命令。
type ExecRunner struct{}

// Run 执行命令。
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// PDFExtractor 通过 pdfinfo 与 pdftotext 读取 PDF 页数和页面文本。
type PDFExtractor struct {
	runner CommandRunner
}

// NewPDFExtractor 创建使用系统命令的提取器。
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{runner: ExecRunner{}}
}

// NewPDFExtractorWithRunner 创建使用指定 runner 的提取器。
func NewPDFExtractorWithRunner(runner CommandRunner) *PDFExtractor {
	return &PDFExtractor{runner: runner}
}

// CheckAvailable 检查 poppler 工具是否可用。
func CheckAvailable() error {
	for _, tool := range []string{"pdftotext", "pdfinfo"} {
		if _, err := exec.LookPath(tool); err != nil {
			return ErrPDFToolNotFound
		}
	}
	return nil
}

// PageCount 返回 PDF 页数。
func (e *PDFExtractor) PageCount(ctx context.Context, path string) (int, error) {
	out, err := e.runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("parse page count %q: %w", line, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output has no page count")
}

// ExtractPages 提取 [first, last] 页（从 1 开始）的文本，保留版面布局。
func (e *PDFExtractor) ExtractPages(ctx context.Context, path string, first, last int) (string, error) {
	if first < 1 || last < first {
		return "", fmt.Errorf("invalid page range %d-%d", first, last)
	}
	out, err := e.runner.Run(ctx, "pdftotext",
		"-layout", "-enc", "UTF-8",
		"-f", strconv.Itoa(first), "-l", strconv.Itoa(last),
		path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	// pdftotext 以换页符分隔页面
	text := strings.ReplaceAll(string(out), "\f", "\n")
	return strings.TrimSpace(text), nil
}

// PageLines 返回单页的非空行，按版面从上到下排列。
func (e *PDFExtractor) PageLines(ctx context.Context, path string, page int) ([]string, error) {
	text, err := e.ExtractPages(ctx, path, page, page)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

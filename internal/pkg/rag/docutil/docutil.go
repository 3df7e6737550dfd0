// Package docutil 提供文档下载与 PDF 文本提取相关的工具函数。
package docutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// PDFSignature PDF 文件头。
const PDFSignature = "%PDF"

// DefaultMaxDownloadBytes 单个文档的默认下载上限。
const DefaultMaxDownloadBytes int64 = 100 << 20

var (
	// ErrNotPDF 下载内容不是 PDF。
	ErrNotPDF = errors.New("下载内容不是有效的 PDF")
	// ErrTooLarge 下载内容超过上限。
	ErrTooLarge = errors.New("下载内容超过大小上限")
)

// StoragePath 返回文档在工作目录中的存放路径：
// <workDir>/<docIdentity>_<jobID 前 8 位>/<docIdentity>.pdf。
func StoragePath(workDir, docIdentity, jobID string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(workDir, docIdentity+"_"+short, docIdentity+".pdf")
}

// FilenameFromURL 返回 URL 路径的最后一段，无法解析时返回 fallback。
func FilenameFromURL(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

// Fetcher 下载远程 PDF 文档。
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher 创建下载器，timeout <= 0 时使用 30 秒，maxBytes <= 0 时使用 DefaultMaxDownloadBytes。
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Fetch 下载 url 指向的 PDF 并写入 dest。
// 非 200 状态码、前 1024 字节中不含 %PDF 或超过大小上限时返回错误，且不会留下文件。
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return fmt.Errorf("download %s: %w (%d > %d)", url, ErrTooLarge, resp.ContentLength, f.maxBytes)
	}
	// 多读一个字节用于判断是否超限
	body := io.LimitReader(resp.Body, f.maxBytes+1)

	head := make([]byte, 1024)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read body: %w", err)
	}
	head = head[:n]
	if !bytes.Contains(head, []byte(PDFSignature)) {
		return ErrNotPDF
	}

	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	written, err := io.Copy(out, io.MultiReader(bytes.NewReader(head), body))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > f.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

// EnsureDir 确保目录存在，如果不存在则创建。
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Package artifact 负责一次性加载模型制品：特征 schema、特征重要性、模型与指标。
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotExist 表示制品不存在，可选制品据此跳过
var ErrNotExist = fs.ErrNotExist

// Source 是制品的读取来源（本地目录、HTTP 服务等）
type Source interface {
	// Name 返回来源描述，用于日志
	Name() string
	// Read 读取名为 name 的制品，不存在时返回包装了 ErrNotExist 的错误
	Read(ctx context.Context, name string) ([]byte, error)
}

// FileSource 本地目录来源。
// 先在 Root 下查找，找不到再查找 Root/results/，与训练脚本的输出目录保持一致。
type FileSource struct {
	Root string
	// Fallbacks 依次尝试的子目录，默认 ["results"]
	Fallbacks []string
}

// NewFileSource 创建本地目录来源
func NewFileSource(root string) *FileSource {
	return &FileSource{Root: root, Fallbacks: []string{"results"}}
}

func (s *FileSource) Name() string { return "file:" + s.Root }

// Resolve 返回制品的实际路径
func (s *FileSource) Resolve(name string) (string, error) {
	candidates := []string{filepath.Join(s.Root, name)}
	for _, dir := range s.Fallbacks {
		candidates = append(candidates, filepath.Join(s.Root, dir, name))
	}
	for _, p := range candidates {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found in %v: %w", name, candidates, ErrNotExist)
}

func (s *FileSource) Read(_ context.Context, name string) ([]byte, error) {
	p, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// HTTPSource 从 HTTP 服务读取制品：GET {BaseURL}/{name}
//
// 用法：
//
//	src := artifact.NewHTTPSource("http://artifacts.internal/creditiq/v3", 10*time.Second)
type HTTPSource struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPSource 创建 HTTP 来源
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewHTTPSourceWithClient 使用自定义 HTTP 客户端创建来源
func NewHTTPSourceWithClient(baseURL string, client *http.Client) *HTTPSource {
	return &HTTPSource{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSource) Name() string { return "http:" + s.BaseURL }

func (s *HTTPSource) Read(ctx context.Context, name string) ([]byte, error) {
	url := s.BaseURL + "/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrNotExist)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP 请求失败: status=%d, body=%s", resp.StatusCode, string(body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return data, nil
}

// IsNotExist 判断制品是否不存在
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*HTTPSource)(nil)
)

package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可包装底层错误（Err），兼容 errors.Is / errors.As
//
// 使用场景：
//   - 制品加载失败：ARTIFACT_LOAD_ERROR
//   - 客户端特征值无法解析：INVALID_FEATURE_VALUE
//   - 模型不可用或推理失败：INFERENCE_ERROR
//   - 请求体不合法：INVALID_INPUT
type DomainError struct {
	Code    string // 错误代码（如 "INVALID_FEATURE_VALUE"）
	Message string // 错误消息，直接返回给调用方
	Module  string // 模块名称（如 "artifact", "feature", "model"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按 Module + Code 比较，便于 errors.Is(err, ErrModelUnavailable) 这类哨兵判断。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Module == "" || e.Module == t.Module) && (t.Message == "" || e.Message == t.Message)
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 错误代码常量
const (
	ErrorCodeArtifactLoad        = "ARTIFACT_LOAD_ERROR"   // 制品缺失或损坏
	ErrorCodeInvalidFeatureValue = "INVALID_FEATURE_VALUE" // 特征值无法解析为数值
	ErrorCodeInference           = "INFERENCE_ERROR"       // 模型不可用或推理失败
	ErrorCodeInvalidInput        = "INVALID_INPUT"         // 请求结构不合法
	ErrorCodeNotFound            = "NOT_FOUND"             // 资源不存在
	ErrorCodeUnavailable         = "UNAVAILABLE"           // 依赖服务不可用
)

// 模块名称常量
const (
	ModuleArtifact = "artifact" // 制品加载
	ModuleFeature  = "feature"  // 特征对齐
	ModuleModel    = "model"    // 模型推理
	ModuleRisk     = "risk"     // 风险分级
	ModuleService  = "service"  // 应用服务
	ModuleStore    = "store"    // 缓存存储
)

// 哨兵错误，仅用于 errors.Is 判断
var (
	// ErrModelUnavailable 表示制品尚未加载（Unloaded 状态）
	ErrModelUnavailable = NewDomainError(ModuleModel, ErrorCodeInference, "model not loaded")

	// ErrStoreNotFound 表示缓存 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsArtifactLoad 检查错误是否为 ARTIFACT_LOAD_ERROR
func IsArtifactLoad(err error) bool { return hasCode(err, ErrorCodeArtifactLoad) }

// IsInvalidFeatureValue 检查错误是否为 INVALID_FEATURE_VALUE
func IsInvalidFeatureValue(err error) bool { return hasCode(err, ErrorCodeInvalidFeatureValue) }

// IsInference 检查错误是否为 INFERENCE_ERROR
func IsInference(err error) bool { return hasCode(err, ErrorCodeInference) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsStoreNotFound 检查错误是否为缓存 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Module == ModuleStore && domainErr.Code == ErrorCodeNotFound
}

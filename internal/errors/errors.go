package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007

	// 游戏状态错误 (2000-2999)
	ErrInvalidStateTransition ErrorCode = 2000
	ErrNotYourTurn            ErrorCode = 2001
	ErrQuestionAlreadyOpen    ErrorCode = 2002
	ErrAlreadyValidated       ErrorCode = 2003
	ErrUnknownQuestion        ErrorCode = 2004
	ErrUnknownAnswer          ErrorCode = 2005
	ErrAlreadyAnswered        ErrorCode = 2006

	// 账本错误 (3000-3099)
	ErrInsufficientDeposit ErrorCode = 3000
	ErrInvalidAmount       ErrorCode = 3001
	ErrLedgerDrift         ErrorCode = 3002

	// 限额错误 (3100-3199)
	ErrDebtLimitExceeded ErrorCode = 3100

	// 通知错误 (4000-4999)
	ErrWebSocketConnect ErrorCode = 4000
	ErrWebSocketSend    ErrorCode = 4001
	ErrWebSocketClosed  ErrorCode = 4003
	ErrNotifyPublish    ErrorCode = 4005
	ErrMessageFormat    ErrorCode = 4007

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseInsert  ErrorCode = 5002
	ErrDatabaseUpdate  ErrorCode = 5003
	ErrDatabaseDelete  ErrorCode = 5004
	ErrTransaction     ErrorCode = 5005
	ErrDataIntegrity   ErrorCode = 5006

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 安全错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrAuthorization  ErrorCode = 7001
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
	ErrNotJury        ErrorCode = 7004
	ErrInactiveUser   ErrorCode = 7005
	ErrNotParticipant ErrorCode = 7006
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",
	ErrNotImplemented:   "功能未实现",

	// 游戏状态错误
	ErrInvalidStateTransition: "无效的游戏状态转换",
	ErrNotYourTurn:            "当前不是你的回合",
	ErrQuestionAlreadyOpen:    "已有未关闭的问题",
	ErrAlreadyValidated:       "答案已经裁决",
	ErrUnknownQuestion:        "问题不存在",
	ErrUnknownAnswer:          "答案不存在",
	ErrAlreadyAnswered:        "该问题已作答",

	// 账本错误
	ErrInsufficientDeposit: "奖池余额不足",
	ErrInvalidAmount:       "无效的金额",
	ErrLedgerDrift:         "账本对账不一致",

	// 限额错误
	ErrDebtLimitExceeded: "负债次数已达上限",

	// 通知错误
	ErrWebSocketConnect: "WebSocket连接失败",
	ErrWebSocketSend:    "WebSocket发送失败",
	ErrWebSocketClosed:  "WebSocket连接已关闭",
	ErrNotifyPublish:    "通知发布失败",
	ErrMessageFormat:    "消息格式错误",

	// 数据库错误
	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseInsert:  "数据库插入失败",
	ErrDatabaseUpdate:  "数据库更新失败",
	ErrDatabaseDelete:  "数据库删除失败",
	ErrTransaction:     "事务处理失败",
	ErrDataIntegrity:   "数据完整性错误",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 安全错误
	ErrAuthentication: "认证失败",
	ErrAuthorization:  "授权失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
	ErrNotJury:        "只有本局评委可以裁决",
	ErrInactiveUser:   "账号未激活",
	ErrNotParticipant: "不是本局参与者",
}

// Kind 错误分类
type Kind string

const (
	KindState         Kind = "state"
	KindAuthorization Kind = "authorization"
	KindLedger        Kind = "ledger"
	KindLimit         Kind = "limit"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := As(err); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// As 从错误链中提取AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil || !stderrors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrUnknown
}

// Category 返回错误分类
func Category(err error) Kind {
	if err == nil {
		return ""
	}
	return GetCode(err).Kind()
}

// Kind 错误码所属分类
func (c ErrorCode) Kind() Kind {
	switch {
	case c == ErrNotFound, c == ErrUnknownQuestion, c == ErrUnknownAnswer:
		return KindNotFound
	case c == ErrInvalidParam, c == ErrInvalidAmount, c == ErrAlreadyExists:
		return KindValidation
	case c == ErrPermissionDenied:
		return KindAuthorization
	case c >= 2000 && c <= 2999:
		return KindState
	case c >= 3000 && c <= 3099:
		return KindLedger
	case c >= 3100 && c <= 3199:
		return KindLimit
	case c >= 7000 && c <= 7999:
		return KindAuthorization
	default:
		return KindInternal
	}
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if strings.Contains(frame.Function, "runtime.") ||
			strings.Contains(frame.Function, "edu-challenge/internal/errors") {
			if !more {
				break
			}
			continue
		}

		e.Stack = append(e.Stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})

		// 只保留前10个栈帧
		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrAuthentication, ErrTokenExpired, ErrTokenInvalid:
		return 401 // Unauthorized
	case ErrTimeout:
		return 408 // Request Timeout
	}

	switch e.Code.Kind() {
	case KindValidation:
		if e.Code == ErrAlreadyExists {
			return 409 // Conflict
		}
		return 400 // Bad Request
	case KindNotFound:
		return 404 // Not Found
	case KindAuthorization:
		return 403 // Forbidden
	case KindState, KindLedger:
		return 409 // Conflict
	case KindLimit:
		return 422 // Unprocessable Entity
	}

	if e.Code >= 5000 && e.Code <= 5999 {
		return 503 // Service Unavailable
	}
	return 500 // Internal Server Error
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrInsufficientDeposit, // 充值后可重新裁决
		ErrTimeout,
		ErrDatabaseConnect,
		ErrTransaction:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrDatabaseConnect,
		ErrConfigLoad,
		ErrConfigMissing,
		ErrDataIntegrity,
		ErrLedgerDrift:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	// 调用栈只用于日志，不下发给客户端
	out := *err
	out.Stack = nil
	return &ErrorResponse{
		Success:   false,
		Error:     &out,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}

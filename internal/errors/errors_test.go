package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	// 多个详情
	err = New(ErrInsufficientDeposit, "需要: 10000", "当前: 3000")
	suite.Equal("奖池余额不足", err.Message)
	suite.Equal("需要: 10000; 当前: 3000", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrDebtLimitExceeded, "玩家 %s 负债次数 %d", "H-1", 2)
	suite.Equal(ErrDebtLimitExceeded, err.Code)
	suite.Equal("玩家 H-1 负债次数 2", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrDatabaseQuery)
	suite.Equal(ErrDatabaseQuery, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 包装已有的AppError时保留原始错误码
	appErr := New(ErrNotYourTurn, "玩家 H-2")
	wrappedAppErr := Wrap(appErr, ErrDatabaseUpdate, "提问")
	suite.Equal(ErrNotYourTurn, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "提问")
}

// 测试错误链中的识别
func (suite *ErrorsTestSuite) TestIsThroughWrapping() {
	appErr := New(ErrAlreadyValidated)
	chained := fmt.Errorf("validate: %w", appErr)

	suite.True(Is(chained, ErrAlreadyValidated))
	suite.Equal(ErrAlreadyValidated, GetCode(chained))
	suite.False(Is(nil, ErrAlreadyValidated))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "游戏ID: 12"
	suite.Equal("[1002] 资源未找到: 游戏ID: 12", err.Error())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("SQL语法错误")
	err := New(ErrDatabaseQuery).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("SQL语法错误", err.Details)

	// 已有Details的情况保留原有Details
	err2 := New(ErrDatabaseQuery, "查询失败").WithCause(cause)
	suite.Equal("查询失败", err2.Details)
}

// 测试错误分类
func (suite *ErrorsTestSuite) TestCategory() {
	testCases := []struct {
		code     ErrorCode
		expected Kind
	}{
		{ErrInvalidStateTransition, KindState},
		{ErrNotYourTurn, KindState},
		{ErrQuestionAlreadyOpen, KindState},
		{ErrAlreadyValidated, KindState},
		{ErrNotJury, KindAuthorization},
		{ErrAuthorization, KindAuthorization},
		{ErrPermissionDenied, KindAuthorization},
		{ErrInsufficientDeposit, KindLedger},
		{ErrDebtLimitExceeded, KindLimit},
		{ErrInvalidParam, KindValidation},
		{ErrUnknownQuestion, KindNotFound},
		{ErrUnknownAnswer, KindNotFound},
		{ErrDatabaseQuery, KindInternal},
	}

	for _, tc := range testCases {
		suite.Equal(tc.expected, Category(New(tc.code)), "错误码 %d", tc.code)
	}
	suite.Equal(Kind(""), Category(nil))
	suite.Equal(KindInternal, Category(errors.New("x")))
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrAlreadyExists, 409},
		{ErrNotFound, 404},
		{ErrUnknownAnswer, 404},
		{ErrPermissionDenied, 403},
		{ErrNotJury, 403},
		{ErrTimeout, 408},
		{ErrAuthentication, 401},
		{ErrTokenInvalid, 401},
		{ErrInvalidStateTransition, 409},
		{ErrInsufficientDeposit, 409},
		{ErrDebtLimitExceeded, 422},
		{ErrDatabaseConnect, 503},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		suite.Equal(tc.expected, New(tc.code).HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	suite.True(IsRetryable(New(ErrInsufficientDeposit)))
	suite.True(IsRetryable(New(ErrDatabaseConnect)))

	for _, code := range []ErrorCode{
		ErrInvalidStateTransition,
		ErrNotJury,
		ErrDebtLimitExceeded,
		ErrAlreadyValidated,
	} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

func (suite *ErrorsTestSuite) TestIsCritical() {
	suite.True(IsCritical(New(ErrLedgerDrift)))
	suite.True(IsCritical(New(ErrDatabaseConnect)))
	suite.False(IsCritical(New(ErrNotYourTurn)))
	suite.False(IsCritical(nil))
}

// 测试调用栈捕获
func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.NotEmpty(err.Stack)
	suite.NotEmpty(err.GetStack())
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrNotFound, "游戏不存在")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err.Code, response.Error.Code)
	suite.Equal(err.Details, response.Error.Details)
	suite.Nil(response.Error.Stack)
	suite.NotEmpty(err.Stack) // 原错误不受影响
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试游戏状态相关错误消息
func (suite *ErrorsTestSuite) TestChallengeErrors() {
	challengeErrors := map[ErrorCode]string{
		ErrInvalidStateTransition: "无效的游戏状态转换",
		ErrNotYourTurn:            "当前不是你的回合",
		ErrQuestionAlreadyOpen:    "已有未关闭的问题",
		ErrAlreadyValidated:       "答案已经裁决",
		ErrNotJury:                "只有本局评委可以裁决",
		ErrInsufficientDeposit:    "奖池余额不足",
		ErrDebtLimitExceeded:      "负债次数已达上限",
	}

	for code, expectedMsg := range challengeErrors {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

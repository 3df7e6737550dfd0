// Package httputils provides HTTP utility functions.
package httputils

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/pkg/utils/errors"
	"github.com/kart-io/docmind/pkg/utils/response"
)

// ContextKeyRequestID 是请求 ID 在 gin.Context 中的键。
const ContextKeyRequestID = "request_id"

// WriteResponse writes the response to the client.
// 出错时 data 非空也会一并返回，用于携带部分结果。
func WriteResponse(c *gin.Context, err error, data interface{}) {
	var resp *response.Response
	if err != nil {
		e := errors.FromError(err)
		logError(c, e)
		resp = response.ErrWithLang(e, Lang(c))
		if data != nil {
			resp.WithData(data)
		}
	} else {
		resp = response.Success(data)
	}
	resp.WithRequestID(c.GetString(ContextKeyRequestID))
	c.JSON(resp.HTTPStatus(), resp)
}

// logError 服务端错误记 error，客户端错误记 info。
func logError(c *gin.Context, e *errors.Errno) {
	fields := []interface{}{
		"code", e.Code,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString(ContextKeyRequestID),
		"error", e.Error(),
	}
	switch {
	case errors.IsServerError(e.Code):
		logger.Errorw("request failed", fields...)
	case errors.IsClientError(e.Code):
		logger.Infow("request rejected", fields...)
	}
}

// Lang 从 Accept-Language 推断消息语言，默认法语。
func Lang(c *gin.Context) string {
	al := strings.ToLower(c.GetHeader("Accept-Language"))
	if strings.HasPrefix(al, "en") {
		return "en"
	}
	return "fr"
}

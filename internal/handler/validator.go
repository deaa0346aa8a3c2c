package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/mediafav/internal/model"
)

var validate = newValidator()

// newValidator はjsonタグ名でフィールドを報告するvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest はリクエスト構造体を検証する。
// 違反がある場合は最初の違反を説明するVALIDATION_ERRORを返す。
func validateRequest(req any) *model.APIError {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewValidationError("リクエストの検証に失敗しました。")
	}

	fe := verrs[0]
	var message string
	switch fe.Tag() {
	case "required":
		message = fmt.Sprintf("%s is required", fe.Field())
	case "email":
		message = fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		message = fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		message = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		message = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return model.NewValidationError(message)
}

// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serializer/pkg/log"
)

// Code 返回给定错误对应的错误码。
// 多个错误组合时，以最后一个错误为准。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case serializerError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// IsRetryableErr 判断错误是否可重试，会穿透 errors.Wrap 与 Combine 查找根因。
func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(serializerError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// WrapErrAsInputErrorWhen 当 err 属于 targets 之一时，将其标记为调用方输入错误。
func WrapErrAsInputErrorWhen(err error, targets ...serializerError) error {
	if merr, ok := err.(serializerError); ok {
		for _, target := range targets {
			if target.errCode == merr.errCode {
				log.Debug("mark error as input error", zap.Error(err))
				WithErrorType(InputError)(&merr)
				return merr
			}
		}
	}
	return err
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(serializerError); ok {
		return merr.errType
	}

	return SystemError
}

// Parameter 相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Proxy 相关错误封装。

// WrapErrProxyLoadFailed 将持久层在强制加载代理时返回的错误与 ErrProxyLoadFailed 组合。
// 组合后的错误同时满足 errors.Is(err, cause) 与 errors.Is(err, ErrProxyLoadFailed)。
func WrapErrProxyLoadFailed(class string, cause error, msg ...string) error {
	err := wrapFields(ErrProxyLoadFailed, value("class", class))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	if cause == nil {
		return err
	}
	return Combine(cause, err)
}

// Metadata 相关错误封装。
func WrapErrClassAlreadyRegistered(class string, msg ...string) error {
	err := wrapFields(ErrClassAlreadyRegistered, value("class", class))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrClassNameInvalid(class string, msg ...string) error {
	err := wrapFields(ErrClassNameInvalid, value("class", class))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Dispatch 相关错误封装。
func WrapErrListenerInvalid(event string, reason string) error {
	return wrapFieldsWithDesc(ErrListenerInvalid, reason, value("event", event))
}

func WrapErrDispatchFailed(event, class string, cause error) error {
	err := wrapFields(ErrDispatchFailed, value("event", event), value("class", class))
	if cause == nil {
		return err
	}
	return Combine(cause, err)
}

// Format 相关错误封装。
func WrapErrFormatUnsupported(format string, msg ...string) error {
	err := wrapFields(ErrFormatUnsupported, value("format", format))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrVisitFailed(format string, typeName string, cause error) error {
	err := wrapFields(ErrVisitFailed, value("format", format), value("type", typeName))
	if cause == nil {
		return err
	}
	return Combine(cause, err)
}

func WrapErrTypeNotation(notation string, reason string) error {
	return wrapFieldsWithDesc(ErrTypeNotation, reason, value("notation", notation))
}

// Pool 相关错误封装。
func WrapErrPoolExhausted(capacity int, msg ...string) error {
	err := wrapFields(ErrPoolExhausted, value("capacity", capacity))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err serializerError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	return err
}

func wrapFieldsWithDesc(err serializerError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

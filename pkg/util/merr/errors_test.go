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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrClassNameInvalid("Dog<")
	wrapped := errors.Wrap(err, "failed to register class")
	s.ErrorIs(wrapped, ErrClassNameInvalid)
	s.Equal(Code(ErrClassNameInvalid), Code(wrapped))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newSerializerError("new error", ErrClassNameInvalid.errCode, false)
	s.True(sameCodeErr.Is(ErrClassNameInvalid))
}

func (s *ErrSuite) TestWrap() {
	s.ErrorIs(WrapErrParameterInvalid("json", "yaml"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "value"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("registry"), ErrParameterMissing)
	s.ErrorIs(WrapErrProxyLoadFailed("Dog", nil), ErrProxyLoadFailed)
	s.ErrorIs(WrapErrClassAlreadyRegistered("Dog"), ErrClassAlreadyRegistered)
	s.ErrorIs(WrapErrClassNameInvalid(""), ErrClassNameInvalid)
	s.ErrorIs(WrapErrListenerInvalid("serializer.pre_serialize", "handler is nil"), ErrListenerInvalid)
	s.ErrorIs(WrapErrDispatchFailed("serializer.pre_serialize", "dog", nil), ErrDispatchFailed)
	s.ErrorIs(WrapErrFormatUnsupported("yaml"), ErrFormatUnsupported)
	s.ErrorIs(WrapErrVisitFailed("json", "Dog", nil), ErrVisitFailed)
	s.ErrorIs(WrapErrTypeNotation("array<", "unterminated"), ErrTypeNotation)
	s.ErrorIs(WrapErrPoolExhausted(8), ErrPoolExhausted)
}

func (s *ErrSuite) TestWrapKeepsCause() {
	errGone := errors.New("record no longer exists")

	err := WrapErrProxyLoadFailed("Dog", errGone)
	s.ErrorIs(err, errGone)
	s.ErrorIs(err, ErrProxyLoadFailed)
	s.Equal(Code(ErrProxyLoadFailed), Code(err))
	s.Contains(err.Error(), "record no longer exists")
	s.Contains(err.Error(), "class=Dog")
}

func (s *ErrSuite) TestInputError() {
	s.Equal(SystemError, GetErrorType(errors.New("plain")))

	err := WrapErrAsInputErrorWhen(ErrFormatUnsupported, ErrParameterInvalid)
	s.Equal(SystemError, GetErrorType(err))
	err = WrapErrAsInputErrorWhen(ErrFormatUnsupported, ErrFormatUnsupported)
	s.Equal(InputError, GetErrorType(err))
	s.Equal(InputError, GetErrorType(errors.Wrap(err, "serialize")))
	s.ErrorIs(err, ErrFormatUnsupported)
}

func (s *ErrSuite) TestRetryable() {
	s.True(IsRetryableErr(ErrPoolExhausted))
	s.True(IsRetryableErr(WrapErrPoolExhausted(8, "pool is full")))
	s.True(IsRetryableErr(Combine(errors.New("submit"), ErrPoolExhausted)))
	s.False(IsRetryableErr(ErrProxyLoadFailed))
	s.True(IsCanceledOrTimeout(context.Canceled))
	s.False(IsCanceledOrTimeout(ErrProxyLoadFailed))
	s.True(IsCanceledOrTimeout(errors.Wrap(context.DeadlineExceeded, "serialize")))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrClassAlreadyRegistered("Cat"), WrapErrFormatUnsupported("yaml"))
	s.Equal(Code(ErrFormatUnsupported), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}

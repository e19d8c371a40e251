package ws

import "testing"

func TestCloseCodeFor(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{CodeNoToken, CloseAuthFailed},
		{CodeInvalidToken, CloseAuthFailed},
		{CodeUserNotFound, CloseAuthFailed},
		{CodeTokenExpired, CloseTokenExpired},
		{CodePermissionDenied, ClosePermissionDenied},
		{CodeDocumentNotFound, CloseDocumentNotFound},
		{CodeTooManyConnections, CloseTooManyConnections},
		{CodeMessageTooLarge, CloseMessageTooLarge},
		{CodeRateLimited, CloseRateLimited},
		{CodeReadOnly, CloseReadOnlyViolation},
		// 未映射的错误码走通用关闭码
		{CodeInternalError, CloseInvalidMessage},
		{"SOMETHING_ELSE", CloseInvalidMessage},
	}

	for _, tc := range cases {
		if got := CloseCodeFor(tc.code); got != tc.want {
			t.Fatalf("CloseCodeFor(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

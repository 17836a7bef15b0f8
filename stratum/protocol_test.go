// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stratum

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexEncodeDecodeRoundTrip(t *testing.T) {
	b := []byte{0xde, 0xad, 0xbe, 0xef}
	s := hexEncode(b)
	require.Equal(t, "deadbeef", s)

	got, err := hexDecode(s)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestHexEncodeNilIsEmptyString(t *testing.T) {
	require.Equal(t, "", hexEncode(nil))
}

func TestHexDecodeEmptyStringIsNil(t *testing.T) {
	got, err := hexDecode("")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestHexDecodeRejectsInvalidHex(t *testing.T) {
	_, err := hexDecode("zz")
	require.Error(t, err)
}

func TestJobMsgMarshalsExpectedFields(t *testing.T) {
	msg := jobMsg("job-1", []byte{0x01}, []byte{0x02, 0x03}, 100)
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, "job", decoded["method"])
	require.Equal(t, "job-1", decoded["id"])
	require.Equal(t, "01", decoded["input"])
	require.Equal(t, "0203", decoded["pow"])
	require.Equal(t, float64(100), decoded["height"])
}

func TestResultMsgCarriesCode(t *testing.T) {
	msg := resultMsg("req-1", CodeLoginFailed)
	require.NotNil(t, msg.Code)
	require.Equal(t, int(CodeLoginFailed), *msg.Code)
}

func TestSolutionResultMsgCode(t *testing.T) {
	accepted := solutionResultMsg("job-2", true, []byte{0xaa})
	require.Equal(t, int(CodeSolutionAccepted), *accepted.Code)
	require.Equal(t, "aa", accepted.BlockID)

	rejected := solutionResultMsg("job-2", false, nil)
	require.Equal(t, int(CodeSolutionRejected), *rejected.Code)
}

func TestResultCodeString(t *testing.T) {
	require.Equal(t, "login_failed", CodeLoginFailed.String())
	require.Equal(t, "solution_accepted", CodeSolutionAccepted.String())
	require.Contains(t, ResultCode(99).String(), "ResultCode(99)")
}

func TestMessageRoundTripsThroughJSON(t *testing.T) {
	original := loginMsg("req-1", "secret-key")
	b, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded message
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, original, decoded)
}

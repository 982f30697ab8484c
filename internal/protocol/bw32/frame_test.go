package bw32

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Frame
		wantErr error
	}{
		{
			name: "heartbeat",
			data: "BW*868900*32*LK#",
			want: Frame{DeviceID: "868900", DeclaredLength: 32, LengthToken: "32", Command: CommandHeartbeat, Token: "LK"},
		},
		{
			name: "heartbeat with trailing fields",
			data: "BW*868900*0012*LK,0,100#",
			want: Frame{DeviceID: "868900", DeclaredLength: 12, LengthToken: "0012", Command: CommandHeartbeat, Token: "LK", Payload: "0,100"},
		},
		{
			name: "position",
			data: "BW*868900*64*UD,240115,093000,A,0622.1234,N,01047.5678,W,015.5,090.0,8,120#",
			want: Frame{
				DeviceID: "868900", DeclaredLength: 64, LengthToken: "64",
				Command: CommandPositionUpdate, Token: "UD",
				Payload: "240115,093000,A,0622.1234,N,01047.5678,W,015.5,090.0,8,120",
			},
		},
		{
			name: "position v2",
			data: "BW*1*9*UD2,x#",
			want: Frame{DeviceID: "1", DeclaredLength: 9, LengthToken: "9", Command: CommandPositionUpdateV2, Token: "UD2", Payload: "x"},
		},
		{
			name: "alarm",
			data: "BW*1*9*AL,x#",
			want: Frame{DeviceID: "1", DeclaredLength: 9, LengthToken: "9", Command: CommandAlarm, Token: "AL", Payload: "x"},
		},
		{
			name: "unknown command without comma",
			data: "BW*868900*10*XYZ#",
			want: Frame{DeviceID: "868900", DeclaredLength: 10, LengthToken: "10", Command: CommandUnknown, Token: "XYZ"},
		},
		{
			name: "payload containing asterisks",
			data: "BW*868900*20*TXT,a*b*c#",
			want: Frame{DeviceID: "868900", DeclaredLength: 20, LengthToken: "20", Command: CommandUnknown, Token: "TXT", Payload: "a*b*c"},
		},
		{
			name: "non numeric length token",
			data: "BW*868900*00AF*LK#",
			want: Frame{DeviceID: "868900", DeclaredLength: -1, LengthToken: "00AF", Command: CommandHeartbeat, Token: "LK"},
		},
		{name: "wrong prefix", data: "XX*868900*32*LK#", wantErr: ErrMalformedFrame},
		{name: "garbage before prefix", data: "zzBW*868900*32*LK#", wantErr: ErrMalformedFrame},
		{name: "too few parts", data: "BW*868900*LK#", wantErr: ErrMalformedFrame},
		{name: "empty body", data: "BW*#", wantErr: ErrMalformedFrame},
		{name: "empty device id", data: "BW**32*LK#", wantErr: ErrMalformedFrame},
		{name: "missing terminator", data: "BW*868900*32*LK", wantErr: ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame([]byte(tt.data))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameEncodePreservesContent(t *testing.T) {
	inputs := []string{
		"BW*868900*32*LK#",
		"BW*868900*64*UD,240115,093000,A,0622.1234,N,01047.5678,W,015.5,090.0,8,120#",
		"BW*868900*20*TXT,a*b*c#",
		"BW*868900*10*XYZ#",
	}

	for _, in := range inputs {
		first, err := ParseFrame([]byte(in))
		require.NoError(t, err)

		second, err := ParseFrame(first.Encode())
		require.NoError(t, err)
		assert.Equal(t, first, second, in)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "Heartbeat", CommandHeartbeat.String())
	assert.Equal(t, "PositionUpdateV2", CommandPositionUpdateV2.String())
	assert.Equal(t, "Unknown", Command(99).String())
}

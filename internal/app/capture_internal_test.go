package app

import (
	"bytes"
	"testing"
)

func TestFramer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		size   int
		pushes [][]byte
		want   [][]byte
		rest   int
	}{
		{
			name:   "exact frame",
			size:   4,
			pushes: [][]byte{{1, 2, 3, 4}},
			want:   [][]byte{{1, 2, 3, 4}},
		},
		{
			name:   "split across pushes",
			size:   4,
			pushes: [][]byte{{1, 2}, {3}, {4, 5}},
			want:   [][]byte{{1, 2, 3, 4}},
			rest:   1,
		},
		{
			name:   "several frames in one push",
			size:   2,
			pushes: [][]byte{{1, 2, 3, 4, 5}},
			want:   [][]byte{{1, 2}, {3, 4}},
			rest:   1,
		},
		{
			name:   "short input",
			size:   8,
			pushes: [][]byte{{1, 2, 3}},
			rest:   3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFramer(tc.size)
			var got [][]byte
			for _, p := range tc.pushes {
				got = append(got, f.push(p)...)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d frames, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if !bytes.Equal(got[i], tc.want[i]) {
					t.Errorf("frame %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
			if len(f.buf) != tc.rest {
				t.Errorf("buffered = %d, want %d", len(f.buf), tc.rest)
			}
		})
	}
}

func TestFramer_FramesSurviveLaterPush(t *testing.T) {
	t.Parallel()
	f := newFramer(2)
	first := f.push([]byte{1, 2, 3})
	f.push([]byte{9, 9, 9})
	if !bytes.Equal(first[0], []byte{1, 2}) {
		t.Errorf("first frame = %v after later push, want [1 2]", first[0])
	}
}

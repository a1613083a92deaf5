package downloader

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSanitizeTitle(t *testing.T) {
	type in struct {
		title string
	}

	type want struct {
		name string
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"Лекция 1. Введение"},
			want{"Лекция 1. Введение"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"TCP/IP \\ UDP"},
			want{"TCP_IP _ UDP"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"  line\nbreak\t"},
			want{"line_break_"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"   "},
			want{"document"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{".."},
			want{"document"},
		},
	}
	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := SanitizeTitle(in.title)
			if diff := cmp.Diff(want.name, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveFrameSource(t *testing.T) {
	type in struct {
		base string
		src  string
	}

	type want struct {
		url string
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{testTargetURL, testFrameSrc},
			want{testFrameURL},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{testTargetURL, "/pluginfile.php/1/mod_scorm/content/index.html"},
			want{"https://online.mospolytech.ru/pluginfile.php/1/mod_scorm/content/index.html"},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{testTargetURL, "https://cdn.example.org/scorm/index.html"},
			want{"https://cdn.example.org/scorm/index.html"},
		},
	}
	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveFrameSource(in.base, in.src)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want.url, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

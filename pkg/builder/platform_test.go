package builder

import (
	"testing"
)

func TestValidateHost(t *testing.T) {
	if err := ValidateHost("linux", "arm64"); err != nil {
		t.Errorf("linux/arm64 should be accepted: %v", err)
	}
	for _, pair := range [][2]string{
		{"linux", "amd64"},
		{"linux", "386"},
		{"darwin", "arm64"},
		{"darwin", "amd64"},
		{"windows", "amd64"},
	} {
		if err := ValidateHost(pair[0], pair[1]); err == nil {
			t.Errorf("%s/%s should be rejected", pair[0], pair[1])
		}
	}
}

func TestParseNvccVersion(t *testing.T) {
	const output = `nvcc: NVIDIA (R) Cuda compiler driver
Copyright (c) 2005-2023 NVIDIA Corporation
Built on Tue_Aug_15_22:08:11_PDT_2023
Cuda compilation tools, release 12.2, V12.2.140
Build cuda_12.2.r12.2/compiler.33191640_0`
	version, err := ParseNvccVersion(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "12.2" {
		t.Errorf("expected \"12.2\", got %q", version)
	}

	if _, err := ParseNvccVersion("gcc (Ubuntu 9.4.0) 9.4.0"); err == nil {
		t.Error("expected an error for non-nvcc output")
	}
}

func TestParseL4TRelease(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{"orin", "# R36 (release), REVISION: 3.0, GCID: 36191598, BOARD: generic", 36, false},
		{"xavier", "# R35 (release), REVISION: 4.1", 35, false},
		{"garbage", "not a tegra release file", 0, true},
		{"empty", "", 0, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseL4TRelease([]byte(test.data))
			if test.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != test.want {
				t.Errorf("expected %d, got %d", test.want, got)
			}
		})
	}
}

func TestDefaultCudaArchForL4T(t *testing.T) {
	tests := []struct {
		release int
		want    string
	}{
		{32, "5.3;6.2;7.2"},
		{35, "7.2;8.7"},
		{36, "8.7"},
		{0, "8.7"},  // Unknown defaults to Orin.
		{99, "8.7"},
	}
	for _, test := range tests {
		if got := DefaultCudaArchForL4T(test.release); got != test.want {
			t.Errorf("DefaultCudaArchForL4T(%d) = %q, want %q", test.release, got, test.want)
		}
	}
}

package onnx

import "testing"

func TestNewImageTensor(t *testing.T) {
	tests := []struct {
		name    string
		data    []float32
		wantErr bool
	}{
		{name: "nil data", data: nil, wantErr: true},
		{name: "too short", data: make([]float32, 10), wantErr: true},
		{name: "too long", data: make([]float32, 100), wantErr: true},
		{name: "exact", data: make([]float32, 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ten, err := NewImageTensor(tt.data, 3, 4, 5)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewImageTensor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if err := ten.Verify(); err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got := ten.Elements(); got != 60 {
				t.Errorf("Elements() = %d, want 60", got)
			}
		})
	}
}

func TestTensorVerify(t *testing.T) {
	if err := (Tensor{}).Verify(); err == nil {
		t.Error("expected error for empty shape")
	}
	if err := (Tensor{Data: make([]float32, 4), Shape: []int64{1, 0, 4}}).Verify(); err == nil {
		t.Error("expected error for zero dimension")
	}
	if err := (Tensor{Data: make([]float32, 3), Shape: []int64{1, 2, 2}}).Verify(); err == nil {
		t.Error("expected error for length mismatch")
	}
	if err := (Tensor{Data: make([]float32, 84*10), Shape: []int64{1, 84, 10}}).Verify(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

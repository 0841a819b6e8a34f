package oscwire

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := "/source/1/pos"
	args := []interface{}{1, 2.5, "xyz", true, false}

	data := Encode(path, args)
	gotPath, gotArgs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotPath != path {
		t.Errorf("path = %q, want %q", gotPath, path)
	}
	if len(gotArgs) != len(args) {
		t.Fatalf("args = %v, want %v", gotArgs, args)
	}
	if gotArgs[0] != 1 {
		t.Errorf("args[0] = %v, want int 1", gotArgs[0])
	}
	if gotArgs[1] != 2.5 {
		t.Errorf("args[1] = %v, want float64 2.5", gotArgs[1])
	}
	if gotArgs[2] != "xyz" {
		t.Errorf("args[2] = %v, want string xyz", gotArgs[2])
	}
	if gotArgs[3] != true || gotArgs[4] != false {
		t.Errorf("bool args = %v %v, want true false", gotArgs[3], gotArgs[4])
	}
}

func TestEncodePads4Byte(t *testing.T) {
	data := Encode("/a", nil)
	if len(data)%4 != 0 {
		t.Errorf("encoded length %d is not a multiple of 4", len(data))
	}
}

func TestDecodeNoArguments(t *testing.T) {
	data := Encode("/ping", nil)
	path, args, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if path != "/ping" || len(args) != 0 {
		t.Errorf("Decode(no-arg message) = %q %v, want /ping []", path, args)
	}
}

func TestDecodeTruncatedErrors(t *testing.T) {
	if _, _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Errorf("Decode of an unterminated buffer should error")
	}
}

package protocol

import (
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"join_user","data":{"userId":"u1"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Type != TypeJoinUser {
		t.Fatalf("type = %q", env.Type)
	}

	if _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("malformed frame should fail")
	}
	if _, err := DecodeEnvelope([]byte(`{"data":{}}`)); err == nil {
		t.Fatalf("missing type should fail")
	}
	if _, err := DecodeEnvelope([]byte(`{"type":"  "}`)); err == nil {
		t.Fatalf("blank type should fail")
	}
}

func TestDecodePayload_Validation(t *testing.T) {
	env, _ := DecodeEnvelope([]byte(`{"type":"join_user","data":{"userId":"u1","userName":"Alice"}}`))
	var join JoinUser
	if err := DecodePayload(env, &join); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if join.UserID != "u1" || join.UserName != "Alice" {
		t.Fatalf("unexpected payload: %+v", join)
	}

	env, _ = DecodeEnvelope([]byte(`{"type":"join_user","data":{"userName":"Alice"}}`))
	var missing JoinUser
	if err := DecodePayload(env, &missing); err == nil {
		t.Fatalf("missing userId should fail validation")
	}
}

func TestMovePiece_Validation(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"valid", `{"gameId":"g1","pieceId":"p1","toPosition":{"row":0,"col":0}}`, true},
		{"from bank", `{"gameId":"g1","pieceId":"p1","fromPosition":null,"toPosition":{"row":1,"col":2}}`, true},
		{"missing target", `{"gameId":"g1","pieceId":"p1"}`, false},
		{"missing piece", `{"gameId":"g1","toPosition":{"row":0,"col":0}}`, false},
		{"missing game", `{"pieceId":"p1","toPosition":{"row":0,"col":0}}`, false},
	}
	for _, tc := range cases {
		env, _ := DecodeEnvelope([]byte(`{"type":"move_piece","data":` + tc.raw + `}`))
		var mv MovePiece
		err := DecodePayload(env, &mv)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected a validation error", tc.name)
		}
	}
}

func TestBoardClear_ScopeValidation(t *testing.T) {
	for _, scope := range []string{"all", "self"} {
		env, _ := DecodeEnvelope([]byte(`{"type":"whiteboard_clear","data":{"gameId":"g1","scope":"` + scope + `"}}`))
		var p BoardClear
		if err := DecodePayload(env, &p); err != nil {
			t.Fatalf("scope %q should validate: %v", scope, err)
		}
	}
	env, _ := DecodeEnvelope([]byte(`{"type":"whiteboard_clear","data":{"gameId":"g1","scope":"everything"}}`))
	var p BoardClear
	if err := DecodePayload(env, &p); err == nil {
		t.Fatalf("unknown scope should fail")
	}
}

func TestDrawEnd_RequiresStroke(t *testing.T) {
	env, _ := DecodeEnvelope([]byte(`{"type":"whiteboard_draw_end","data":{"gameId":"g1"}}`))
	var p DrawEnd
	if err := DecodePayload(env, &p); err == nil {
		t.Fatalf("draw end without strokeData should fail")
	}
}

package commands

import (
	"testing"
)

func TestDecodePayloadVariants(t *testing.T) {
	type item struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}

	var fromMap item
	if err := decodePayload(map[string]any{"id": float64(1), "title": "a"}, &fromMap); err != nil {
		t.Fatalf("map payload: %v", err)
	}
	if fromMap.ID != 1 || fromMap.Title != "a" {
		t.Errorf("map decode wrong: %+v", fromMap)
	}

	var fromString item
	if err := decodePayload(`{"id": 2, "title": "b"}`, &fromString); err != nil {
		t.Fatalf("string payload: %v", err)
	}
	if fromString.ID != 2 {
		t.Errorf("string decode wrong: %+v", fromString)
	}

	var fromFenced item
	if err := decodePayload("```json\n{\"id\": 3, \"title\": \"c\"}\n```", &fromFenced); err != nil {
		t.Fatalf("fenced payload: %v", err)
	}
	if fromFenced.ID != 3 {
		t.Errorf("fenced decode wrong: %+v", fromFenced)
	}

	// Trailing comma needs the repair pass.
	var fromBroken item
	if err := decodePayload(`{"id": 4, "title": "d",}`, &fromBroken); err != nil {
		t.Fatalf("repairable payload: %v", err)
	}
	if fromBroken.ID != 4 {
		t.Errorf("repaired decode wrong: %+v", fromBroken)
	}

	var target item
	if err := decodePayload("not json at all {{{", &target); err == nil {
		t.Error("garbage must fail")
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"f":    float64(7),
		"s":    "8",
		"bad":  "x",
		"b":    true,
		"bs":   "true",
		"list": []any{float64(1), "2"},
		"csv":  "3, 4,,5",
	}

	if n, ok := argInt(args, "f"); !ok || n != 7 {
		t.Errorf("float arg: %d %v", n, ok)
	}
	if n, ok := argInt(args, "s"); !ok || n != 8 {
		t.Errorf("string arg: %d %v", n, ok)
	}
	if _, ok := argInt(args, "bad"); ok {
		t.Error("non-numeric string must fail")
	}
	if _, ok := argInt(args, "missing"); ok {
		t.Error("missing key must fail")
	}
	if !argBool(args, "b") || !argBool(args, "bs") || argBool(args, "bad") {
		t.Error("bool args wrong")
	}
	if got := argIntSlice(args, "list"); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("list arg: %v", got)
	}
	if got := argIntSlice(args, "csv"); len(got) != 3 || got[2] != 5 {
		t.Errorf("csv arg: %v", got)
	}
}

func TestParseItemID(t *testing.T) {
	taskID, subID, hasSub, err := parseItemID("5")
	if err != nil || taskID != 5 || hasSub {
		t.Errorf("plain id: %d %d %v %v", taskID, subID, hasSub, err)
	}

	taskID, subID, hasSub, err = parseItemID("5.2")
	if err != nil || taskID != 5 || subID != 2 || !hasSub {
		t.Errorf("dotted id: %d %d %v %v", taskID, subID, hasSub, err)
	}

	for _, bad := range []string{"", "x", "5.x", "."} {
		if _, _, _, err := parseItemID(bad); err == nil {
			t.Errorf("id %q should fail", bad)
		}
	}
}

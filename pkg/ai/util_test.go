package ai

import "testing"

func TestUnmarshalFlexible(t *testing.T) {
	t.Parallel()

	type payload struct {
		Same   bool   `json:"same"`
		Reason string `json:"reason"`
	}

	tests := []struct {
		name    string
		input   string
		want    payload
		wantErr bool
	}{
		{
			name:  "clean_json",
			input: `{"same": true, "reason": "ok"}`,
			want:  payload{Same: true, Reason: "ok"},
		},
		{
			name:  "double_encoded_string",
			input: `"{\"same\": true, \"reason\": \"ok\"}"`,
			want:  payload{Same: true, Reason: "ok"},
		},
		{
			name:  "trailing_comma_repaired",
			input: `{"same": true, "reason": "ok",}`,
			want:  payload{Same: true, Reason: "ok"},
		},
		{
			name:  "surrounding_whitespace",
			input: "\n  {\"same\": false, \"reason\": \"no\"}  \n",
			want:  payload{Same: false, Reason: "no"},
		},
		{
			name:    "hopeless_input",
			input:   "not even close to json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got payload
			err := UnmarshalFlexible(tt.input, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("got %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

package messagequeue

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr bool
	}{
		{
			"valid version transition",
			SubjectVersionTransitioned,
			`{"version_id":"v-1","template_id":"t-1","tenant_id":"acme","from":"DRAFT","to":"TESTING"}`,
			false,
		},
		{
			"valid approval requested",
			SubjectApprovalRequested,
			`{"approval_id":"a-1","tenant_id":"acme","request_type":"VERSION_PROMOTION","target_id":"v-1"}`,
			false,
		},
		{
			"valid eval completed",
			SubjectEvalRunCompleted,
			`{"run_id":"r-1","suite_id":"s-1","version_id":"v-1","tenant_id":"acme","status":"COMPLETED","pass_rate":0.9,"overall_score":0.92}`,
			false,
		},
		{
			"invalid json rejected",
			SubjectPolicyDecision,
			`{not json`,
			true,
		},
		{
			"wrong field type rejected",
			SubjectEvalRunCompleted,
			`{"run_id":"r-1","pass_rate":"high"}`,
			true,
		},
		{
			"unknown subject passes",
			"some.future.subject",
			`{"anything":"goes"}`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.subject, err, tt.wantErr)
			}
		})
	}
}

package gcsuploader

import "testing"

func TestSplitGCSURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{uri: "gs://statements/deals/d1/doc.pdf", bucket: "statements", object: "deals/d1/doc.pdf"},
		{uri: "gs://bucket/file.csv", bucket: "bucket", object: "file.csv"},
		{uri: "gs://bucket", wantErr: true},
		{uri: "gs://bucket/", wantErr: true},
		{uri: "https://bucket/file.csv", wantErr: true},
		{uri: "inline://statement.csv", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := splitGCSURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got %q %q", bucket, object)
				}
				return
			}
			if err != nil {
				t.Fatalf("splitGCSURI: %v", err)
			}
			if bucket != tt.bucket || object != tt.object {
				t.Errorf("got (%q, %q), want (%q, %q)", bucket, object, tt.bucket, tt.object)
			}
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/folder/file.pdf", "file.pdf"},
		{"gs://bucket/file.csv", "file.csv"},
		{"gs://bucket-only", "bucket-only"},
	}
	for _, tt := range tests {
		if got := ExtractFilenameFromGCSURI(tt.uri); got != tt.want {
			t.Errorf("ExtractFilenameFromGCSURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

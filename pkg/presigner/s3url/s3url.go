// Package s3url extracts bucket and object key from plain S3 object URLs.
//
// Both addressing styles are understood:
//
//	https://bucket.s3.amazonaws.com/path/to/key            (virtual-hosted)
//	https://bucket.s3.us-west-2.amazonaws.com/path/to/key  (virtual-hosted, regional)
//	https://s3.amazonaws.com/bucket/path/to/key            (path style)
//	https://s3.us-west-2.amazonaws.com/bucket/path/to/key  (path style, regional)
package s3url

import (
	"net/url"
	"regexp"
	"strings"
)

const awsDomain = ".amazonaws.com"

var regionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d+$`)

// Object identifies a single S3 object
type Object struct {
	Bucket string
	Key    string
	Region string // empty for the global endpoint
}

// String returns the object in s3://bucket/key form
func (o Object) String() string {
	return "s3://" + o.Bucket + "/" + o.Key
}

// Parse extracts the bucket, key and region hint from an S3 object URL.
// The key is the decoded URL path, which is the object's actual key.
func Parse(rawURL string) (Object, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return Object{}, &UnrecognizedFormatError{URL: rawURL}
	}

	host := strings.ToLower(u.Hostname())
	var obj Object

	if bucket, region, ok := virtualHosted(host); ok {
		obj = Object{
			Bucket: bucket,
			Key:    strings.TrimLeft(u.Path, "/"),
			Region: region,
		}
	} else if region, ok := pathStyle(host); ok {
		parts := strings.SplitN(strings.TrimLeft(u.Path, "/"), "/", 2)
		obj.Bucket = parts[0]
		if len(parts) > 1 {
			obj.Key = parts[1]
		}
		obj.Region = region
	} else {
		return Object{}, &UnrecognizedFormatError{URL: rawURL}
	}

	if obj.Bucket == "" || obj.Key == "" {
		return Object{}, &IncompleteReferenceError{URL: rawURL}
	}
	return obj, nil
}

// virtualHosted reports whether host is <bucket>.<s3 endpoint>
func virtualHosted(host string) (bucket, region string, ok bool) {
	rest, found := strings.CutSuffix(host, awsDomain)
	if !found {
		return "", "", false
	}
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] != '.' {
			continue
		}
		if region, ok := endpointRegion(rest[i+1:]); ok {
			return rest[:i], region, true
		}
	}
	return "", "", false
}

// pathStyle reports whether host is a bare S3 endpoint
func pathStyle(host string) (region string, ok bool) {
	rest, found := strings.CutSuffix(host, awsDomain)
	if !found {
		return "", false
	}
	return endpointRegion(rest)
}

// endpointRegion matches the S3 endpoint label that precedes ".amazonaws.com":
// "s3", "s3.<region>" or the legacy "s3-<region>".
func endpointRegion(label string) (string, bool) {
	if label == "s3" {
		return "", true
	}
	for _, prefix := range []string{"s3.", "s3-"} {
		if region, found := strings.CutPrefix(label, prefix); found && regionPattern.MatchString(region) {
			return region, true
		}
	}
	return "", false
}

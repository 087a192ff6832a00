package types

import (
	"fmt"
	"regexp"
	"strings"
)

// nameRE enforces FunctionNamePattern once at init instead of recompiling
// it on every Create/Get call.
var nameRE = regexp.MustCompile(FunctionNamePattern)

// ValidFunctionName reports whether name matches the accepted function
// name shape.
func ValidFunctionName(name string) bool {
	return name != "" && nameRE.MatchString(name)
}

// FunctionArn builds the ARN reported in FunctionProperties and accepted
// back as a notification target. The region/account segments are fixed
// placeholders; this platform doesn't model multi-account or multi-region
// deployments.
func FunctionArn(name string) string {
	return fmt.Sprintf("arn:woofcloud:lambda:local:000000000000:function:%s", name)
}

// BucketArn builds the S3-style ARN carried in event records and
// accepted in notification configuration.
func BucketArn(bucket string) string {
	return "arn:aws:s3:::" + bucket
}

// ParseFunctionArn extracts the function name from an ARN of the shape
// FunctionArn produces. Any ARN whose final ":function:" segment is
// followed by a valid function name is accepted, so configurations
// written against AWS-flavored ARNs (arn:aws:lambda:function:name) parse
// the same way.
func ParseFunctionArn(arn string) (string, bool) {
	const marker = ":function:"
	idx := strings.LastIndex(arn, marker)
	if idx < 0 {
		return "", false
	}
	name := arn[idx+len(marker):]
	if !ValidFunctionName(name) {
		return "", false
	}
	return name, true
}

// handlerRE enforces the "pkg.func" handler shape.
var handlerRE = regexp.MustCompile(`^[A-Za-z0-9_]+\.[A-Za-z0-9_]+$`)

// ValidHandler reports whether handler matches the "pkg.func" shape.
func ValidHandler(handler string) bool {
	return handlerRE.MatchString(handler)
}

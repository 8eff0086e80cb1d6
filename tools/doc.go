// Package tools is the catalog of vCenter operations the broker exposes.
//
// Each tool is a plain function over a vcenter.Caller that is already bound
// to its target host. Tools do not authorize, rate limit or retry; the
// broker does that before and around every call.
package tools

package secret_test

import (
	"context"
	"fmt"
	"os"

	"github.com/jonwraymond/vspherebroker/secret"
)

func ExampleResolver_ResolveValue() {
	_ = os.Setenv("EXAMPLE_VCENTER_PASSWORD", "s3cret")
	defer os.Unsetenv("EXAMPLE_VCENTER_PASSWORD")

	v, err := secret.Default().ResolveValue(context.Background(), "secretref:env:EXAMPLE_VCENTER_PASSWORD")
	fmt.Println(v, err)
	// Output: s3cret <nil>
}

package errors_test

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/gridframe/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeValidation, "rowStart must not exceed rowEnd").
		WithDetail("row_start", 10).
		WithDetail("row_end", 5)

	fmt.Println(err.Error())

	// Output:
	// validation: rowStart must not exceed rowEnd
}

// ExampleWrap shows how storage failures are wrapped.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeUnderlyingRead, "read row group 3").
		WithDetail("row_group", 3)

	if errors.IsType(err, errors.ErrorTypeUnderlyingRead) {
		fmt.Println("storage read failed")
	}
	fmt.Println(err)

	// Output:
	// storage read failed
	// underlying_read: read row group 3: unexpected EOF
}

// ExampleOutOfRange shows the error returned for an invalid row.
func ExampleOutOfRange() {
	fmt.Println(errors.OutOfRange("row", 10000, 10000))
	fmt.Println(errors.UnknownColumn("Salary"))

	// Output:
	// out_of_range: row 10000 out of range [0, 10000)
	// unknown_column: unknown column "Salary"
}

// ExampleIsCancelled shows that both wrapped and bare context errors count as
// cancellation.
func ExampleIsCancelled() {
	fmt.Println(errors.IsCancelled(errors.Cancelled(context.Canceled)))
	fmt.Println(errors.IsCancelled(fmt.Errorf("fetch: %w", context.DeadlineExceeded)))
	fmt.Println(errors.IsCancelled(io.EOF))

	// Output:
	// true
	// true
	// false
}

// ExampleIsRetryable shows which failures a later fetch may retry.
func ExampleIsRetryable() {
	readErr := errors.UnderlyingRead(io.EOF, "range request failed")
	rangeErr := errors.OutOfRange("row", -1, 100)

	fmt.Println(errors.IsRetryable(readErr))
	fmt.Println(errors.IsRetryable(rangeErr))

	// Output:
	// true
	// false
}

// Example_errorChain shows how contexts stack.
func Example_errorChain() {
	err := errors.New(errors.ErrorTypeConnection, "connection reset").
		WithDetail("host", "data.example.com")
	err = errors.Wrap(err, errors.ErrorTypeUnderlyingRead, "read bytes 4096-8191")
	err = errors.Wrap(err, errors.ErrorTypeInternal, "fetch rows 100-200")

	fmt.Println(err)

	// Output:
	// internal: fetch rows 100-200: underlying_read: read bytes 4096-8191: connection: connection reset
}

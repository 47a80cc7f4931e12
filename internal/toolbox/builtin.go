package toolbox

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/tools"
)

const (
	KindPalindrome  = "palindrome"
	KindTemperature = "temperature"
	KindEmail       = "email"
)

// Palindrome reports whether the input reads the same both ways, ignoring
// case and anything that is not a letter or digit.
type Palindrome struct{}

var _ tools.Tool = Palindrome{}

func (Palindrome) Name() string { return "palindrome_checker" }

func (Palindrome) Description() string {
	return "Checks whether a word or phrase is a palindrome. Input is the text to check."
}

func (Palindrome) Call(_ context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "Input cannot be empty.", nil
	}
	var cleaned []rune
	for _, r := range strings.ToLower(input) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			cleaned = append(cleaned, r)
		}
	}
	for i, j := 0, len(cleaned)-1; i < j; i, j = i+1, j-1 {
		if cleaned[i] != cleaned[j] {
			return fmt.Sprintf("'%s' is not a palindrome.", input), nil
		}
	}
	return fmt.Sprintf("'%s' is a palindrome.", input), nil
}

// Temperature converts Celsius to Fahrenheit.
type Temperature struct{}

var _ tools.Tool = Temperature{}

func (Temperature) Name() string { return "temperature_converter" }

func (Temperature) Description() string {
	return "Converts a temperature from Celsius to Fahrenheit. Input is the numeric Celsius value."
}

func (Temperature) Call(_ context.Context, input string) (string, error) {
	c, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return "Invalid input. Please enter a numeric value.", nil
	}
	f := c*9/5 + 32
	return fmt.Sprintf("%s°C = %.2f°F", strconv.FormatFloat(c, 'f', -1, 64), f), nil
}

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// Email validates the shape of an email address.
type Email struct{}

var _ tools.Tool = Email{}

func (Email) Name() string { return "email_validator" }

func (Email) Description() string {
	return "Validates the format of an email address. Input is the address."
}

func (Email) Call(_ context.Context, input string) (string, error) {
	email := strings.TrimSpace(input)
	if emailPattern.MatchString(email) {
		return "Valid email: " + email, nil
	}
	return "Invalid email format.", nil
}

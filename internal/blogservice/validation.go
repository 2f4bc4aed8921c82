package blogservice

import (
	"github.com/sushihentaime/blogthread/internal/common"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 50_000
	maxContentLength     = 5_000
)

func validateTitle(v *common.Validator, title string) {
	v.Check(title != "", "title", "must be provided")
	v.Check(v.CheckStringLength(title, 0, maxTitleLength), "title", "must not be more than 200 characters long")
}

func validateDescription(v *common.Validator, description string) {
	v.Check(description != "", "description", "must be provided")
	v.Check(v.CheckStringLength(description, 0, maxDescriptionLength), "description", "must not be more than 50000 characters long")
}

func validateContent(v *common.Validator, content string) {
	v.Check(content != "", "content", "must be provided")
	v.Check(v.CheckStringLength(content, 0, maxContentLength), "content", "must not be more than 5000 characters long")
}

func validateInt(v *common.Validator, num int, name string) {
	v.Check(num > 0, name, "must be greater than zero")
}

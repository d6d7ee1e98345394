package controllers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PostForm is the create/edit form of a post.
type PostForm struct {
	Title      string `form:"title" binding:"required,max=128"`
	Text       string `form:"text" binding:"required"`
	Categories []uint `form:"categories" binding:"required,min=1"`
}

func (f *PostForm) normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Text = strings.TrimSpace(f.Text)
}

// SignupForm is the account registration form.
type SignupForm struct {
	Username string `form:"username" binding:"required,min=3,max=64"`
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required"`
	Confirm  string `form:"confirm" binding:"required"`
}

var fieldLabels = map[string]string{
	"Title":      "Title",
	"Text":       "Text",
	"Categories": "Categories",
	"Username":   "Username",
	"Email":      "Email",
	"Password":   "Password",
	"Confirm":    "Password confirmation",
}

// formErrors turns binding errors into messages suitable for a form page.
func formErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"The form contains invalid values."}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		label := fieldLabels[fe.Field()]
		if label == "" {
			label = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, label+" is required.")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters.", label, fe.Param()))
		case "min":
			if fe.Field() == "Categories" {
				msgs = append(msgs, "Choose at least one category.")
			} else {
				msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters.", label, fe.Param()))
			}
		case "email":
			msgs = append(msgs, "Enter a valid email address.")
		default:
			msgs = append(msgs, label+" is invalid.")
		}
	}
	return msgs
}

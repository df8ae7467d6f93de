package script

// Standard holds the built-in scripts, selectable by giving their name as
// the whole script of a descriptor.
var Standard = map[string]string{
	"plain_1page": `
		type:<<username>>
		key:Tab
		type:<<password>>
		key:Return
	`,
	"plain_2page": `
		type:<<username>>
		key:Return
		sleep:2
		type:<<password>>
		key:Return
	`,
	"totp_2page": `
		type:<<username>>
		key:Tab
		type:<<password>>
		key:Return
		sleep:2
		type:<<totp>>
		key:Return
	`,
	"totp_3page": `
		type:<<username>>
		key:Return
		sleep:2
		type:<<password>>
		key:Return
		sleep:2
		type:<<totp>>
		key:Return
	`,
}

// Expand returns the body of the standard script named by source, or source
// itself when it is not exactly such a name.
func Expand(source string) string {
	if body, ok := Standard[source]; ok {
		return body
	}
	return source
}

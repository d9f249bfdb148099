package protocol

import _ "embed"

// GuestSupportModule is the Python source of the guest-side support module
// (see guestlib/sandrun_support.py). The Job Manager stages it into every
// job's code/ subtree as sandrun_support.py so the guest can import it
// without network access.
//
//go:embed guestlib/sandrun_support.py
var GuestSupportModule string

// GuestSupportFilename is the name the module is staged under inside the
// guest's code/ directory.
const GuestSupportFilename = "sandrun_support.py"

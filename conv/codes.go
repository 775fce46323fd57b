package conv

// GSMCodes lists all GSM codes in the order of 3GPP TS 45.003.
var GSMCodes = []*Code{
	GSMXCCH, GSMRACH, GSMSCH, GSMCS2, GSMCS3,
	GSMTCHAFS122, GSMTCHAFS102, GSMTCHAFS795, GSMTCHAFS74, GSMTCHAFS67, GSMTCHAFS59, GSMTCHAFS515, GSMTCHAFS475,
	GSMTCHFR, GSMTCHHR,
	GSMTCHAHS795, GSMTCHAHS74, GSMTCHAHS67, GSMTCHAHS59, GSMTCHAHS515, GSMTCHAHS475,
	GSMMCS1DLHDR, GSMMCS1ULHDR, GSMMCS1, GSMMCS2, GSMMCS3, GSMMCS4,
	GSMMCS5DLHDR, GSMMCS5ULHDR, GSMMCS5, GSMMCS6,
	GSMMCS7DLHDR, GSMMCS7ULHDR, GSMMCS7, GSMMCS8, GSMMCS9,
}

// CodeByName finds a GSM code by its name, e.g. "xcch" or "tch_afs_7_95".
func CodeByName(name string) (*Code, bool) {
	for _, code := range GSMCodes {
		if code.Name == name {
			return code, true
		}
	}
	return nil, false
}

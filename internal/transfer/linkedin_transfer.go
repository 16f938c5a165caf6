package transfer

type LinkedinUserInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

type LinkedinDistribution struct {
	FeedDistribution string   `json:"feedDistribution"`
	TargetEntities   []string `json:"targetEntities"`
	ThirdParty       []string `json:"thirdPartyDistributionChannels"`
}

type LinkedinMedia struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type LinkedinMultiImage struct {
	Images []LinkedinMedia `json:"images"`
}

type LinkedinPostContent struct {
	Media      *LinkedinMedia      `json:"media,omitempty"`
	MultiImage *LinkedinMultiImage `json:"multiImage,omitempty"`
}

type LinkedinPostRequest struct {
	Author         string               `json:"author"`
	Commentary     string               `json:"commentary"`
	Visibility     string               `json:"visibility"`
	Distribution   LinkedinDistribution `json:"distribution"`
	Content        *LinkedinPostContent `json:"content,omitempty"`
	LifecycleState string               `json:"lifecycleState"`
}

type LinkedinUploadRequest struct {
	InitializeUploadRequest struct {
		Owner         string `json:"owner"`
		FileSizeBytes int64  `json:"fileSizeBytes,omitempty"`
	} `json:"initializeUploadRequest"`
}

type LinkedinUploadInstruction struct {
	UploadURL string `json:"uploadUrl"`
	FirstByte int64  `json:"firstByte"`
	LastByte  int64  `json:"lastByte"`
}

type LinkedinUploadResponse struct {
	Value struct {
		UploadURL          string                      `json:"uploadUrl"`
		Image              string                      `json:"image"`
		Video              string                      `json:"video"`
		UploadToken        string                      `json:"uploadToken"`
		UploadInstructions []LinkedinUploadInstruction `json:"uploadInstructions"`
	} `json:"value"`
}

type LinkedinFinalizeRequest struct {
	FinalizeUploadRequest struct {
		Video           string   `json:"video"`
		UploadToken     string   `json:"uploadToken"`
		UploadedPartIDs []string `json:"uploadedPartIds"`
	} `json:"finalizeUploadRequest"`
}

type LinkedinError struct {
	Status      int    `json:"status"`
	ServiceCode int    `json:"serviceErrorCode"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

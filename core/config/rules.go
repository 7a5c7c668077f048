package config

import "clash-launcher/internal/constants"

const (
	dohGoogle     = "https://8.8.8.8/dns-query"
	dohCloudflare = "https://1.1.1.1/dns-query"
	dnsAliDNS     = "223.5.5.5"
)

var privateRules = []string{
	"DOMAIN-SUFFIX,local,DIRECT",
	"IP-CIDR,127.0.0.0/8,DIRECT",
	"IP-CIDR,172.16.0.0/12,DIRECT",
	"IP-CIDR,192.168.0.0/16,DIRECT",
	"IP-CIDR,10.0.0.0/8,DIRECT",
}

// Matchers routed through the selector group, most specific first.
var foreignMatchers = []string{
	"DOMAIN,gemini.google.com",
	"DOMAIN-SUFFIX,gemini.google.com",
	"DOMAIN,ai.google.dev",
	"DOMAIN,makersuite.google.com",
	"DOMAIN,generativelanguage.googleapis.com",
	"DOMAIN-SUFFIX,google.com",
	"DOMAIN-SUFFIX,googleapis.com",
	"DOMAIN-SUFFIX,gstatic.com",
	"DOMAIN-SUFFIX,googleusercontent.com",
	"DOMAIN-SUFFIX,ggpht.com",
	"DOMAIN-SUFFIX,googleadservices.com",
	"DOMAIN-SUFFIX,googlesyndication.com",
	"DOMAIN-SUFFIX,googletagmanager.com",
	"DOMAIN-SUFFIX,googletagservices.com",
	"DOMAIN-SUFFIX,google.co.jp",
	"DOMAIN-SUFFIX,google.co.uk",
	"DOMAIN-SUFFIX,google.de",
	"DOMAIN-SUFFIX,google.fr",
	"DOMAIN-SUFFIX,youtube.com",
	"DOMAIN-SUFFIX,ytimg.com",
	"DOMAIN-SUFFIX,googlevideo.com",
	"DOMAIN-SUFFIX,openai.com",
	"DOMAIN-SUFFIX,chatgpt.com",
	"DOMAIN-SUFFIX,oaiusercontent.com",
	"DOMAIN-SUFFIX,oaistatic.com",
	"DOMAIN-SUFFIX,auth0.com",
	"DOMAIN-SUFFIX,anthropic.com",
	"DOMAIN-SUFFIX,claude.ai",
	"DOMAIN-SUFFIX,github.com",
	"DOMAIN-SUFFIX,githubusercontent.com",
	"DOMAIN-SUFFIX,twitter.com",
	"DOMAIN-SUFFIX,x.com",
	"DOMAIN-SUFFIX,facebook.com",
	"DOMAIN-SUFFIX,instagram.com",
	"DOMAIN-SUFFIX,cloudflare.com",
}

var directSuffixes = []string{
	"cn",
	"taobao.com",
	"tmall.com",
	"alipay.com",
	"jd.com",
	"baidu.com",
	"bilibili.com",
	"qq.com",
	"163.com",
	"126.com",
	"sina.com.cn",
	"weibo.com",
	"douban.com",
	"zhihu.com",
	"apple.com",
	"icloud.com",
	"microsoft.com",
}

// buildRules returns the ordered rule list. The last rule is always an
// unconditional MATCH to selector.
func buildRules(selector string) []string {
	rules := make([]string, 0, len(privateRules)+len(foreignMatchers)+len(directSuffixes)+2)
	rules = append(rules, privateRules...)
	for _, m := range foreignMatchers {
		rules = append(rules, m+","+selector)
	}
	for _, suffix := range directSuffixes {
		rules = append(rules, "DOMAIN-SUFFIX,"+suffix+","+constants.DirectPolicy)
	}
	rules = append(rules, "GEOIP,CN,"+constants.DirectPolicy, "MATCH,"+selector)
	return rules
}

func defaultDNS() DNS {
	policy := map[string]string{
		"gemini.google.com":                 dohGoogle,
		"ai.google.dev":                     dohGoogle,
		"makersuite.google.com":             dohGoogle,
		"generativelanguage.googleapis.com": dohGoogle,
	}
	for _, d := range []string{"google.com", "googleapis.com", "gstatic.com", "googleusercontent.com", "ggpht.com", "youtube.com", "ytimg.com", "googlevideo.com"} {
		policy["*."+d] = dohGoogle
	}
	for _, d := range []string{"openai.com", "chatgpt.com", "oaiusercontent.com", "oaistatic.com", "anthropic.com", "claude.ai"} {
		policy["*."+d] = dohCloudflare
	}
	for _, d := range []string{"cn", "taobao.com", "tmall.com", "alipay.com", "jd.com", "baidu.com", "qq.com", "bilibili.com"} {
		policy["*."+d] = dnsAliDNS
	}

	return DNS{
		Enable:            true,
		Listen:            "0.0.0.0:53",
		EnhancedMode:      "redir-host",
		DefaultNameserver: []string{dnsAliDNS, "119.29.29.29"},
		Nameserver:        []string{dnsAliDNS, "119.29.29.29", dohCloudflare, dohGoogle},
		Fallback: []string{
			dohCloudflare,
			"https://1.0.0.1/dns-query",
			dohGoogle,
			"https://8.8.4.4/dns-query",
			"tls://1.1.1.1:853",
			"tls://8.8.8.8:853",
		},
		FallbackFilter: FallbackFilter{
			GeoIP:     true,
			GeoIPCode: "CN",
			IPCIDR:    []string{"240.0.0.0/4", "0.0.0.0/32", "127.0.0.1/32"},
			Domain: []string{
				"+.google.com", "+.googleapis.com", "+.gstatic.com", "+.googleusercontent.com",
				"+.youtube.com", "+.googlevideo.com", "+.google.co.jp", "+.google.co.uk",
				"+.google.de", "+.google.fr", "+.ggpht.com", "+.googleadservices.com",
				"+.googlesyndication.com", "+.googletagmanager.com", "+.googletagservices.com",
				"+.openai.com", "+.chatgpt.com", "+.oaiusercontent.com", "+.oaistatic.com",
				"+.anthropic.com", "+.claude.ai", "+.cloudflare.com", "+.github.com",
			},
		},
		NameserverPolicy: policy,
	}
}
